package config

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"edupanel/internal/models"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:7480"
	DefaultDBFileName   = ".edupanel.db"
	DefaultUploadDir    = "uploads"
	DefaultLogLevel     = "info"
	DefaultPublicPrefix = "/api/uploads/"

	DefaultMaxUploadBytes       int64 = 10 * 1024 * 1024
	DefaultPhotoMaxUploadBytes  int64 = 2 * 1024 * 1024
	DefaultMaxRequestBytes      int64 = 64 * 1024 * 1024
	DefaultMultipartMemory      int64 = 8 * 1024 * 1024
	DefaultMaxConcurrentUploads       = 16
	DefaultSweepMinAge                = "1h"

	configFileName           = ".edupanel.toml"
	configDirEnvKey          = "EDUPANEL_CONFIG_DIR"
	trustProjectConfigEnvKey = "EDUPANEL_TRUST_PROJECT_CONFIG"

	apiURLEnvKey            = "EDUPANEL_API_URL"
	dbPathEnvKey            = "EDUPANEL_DB"
	logLevelEnvKey          = "EDUPANEL_LOG_LEVEL"
	catalogPathEnvKey       = "EDUPANEL_CATALOG"
	uploadDirEnvKey         = "EDUPANEL_UPLOAD_DIR"
	allowedMediaTypesEnvKey = "EDUPANEL_UPLOAD_ALLOWED_MEDIA_TYPES"
	sweepScheduleEnvKey     = "EDUPANEL_SWEEP_SCHEDULE"
)

// UploadConfig defines runtime configuration for file uploads.
type UploadConfig struct {
	Dir                  string   `toml:"dir"`
	PublicPrefix         string   `toml:"public_prefix"`
	PublicBaseURL        string   `toml:"public_base_url"`
	MaxUploadBytes       int64    `toml:"max_upload_bytes"`
	PhotoMaxUploadBytes  int64    `toml:"photo_max_upload_bytes"`
	MaxRequestBytes      int64    `toml:"max_request_bytes"`
	MultipartMaxMemory   int64    `toml:"multipart_max_memory"`
	AllowedMediaTypes    []string `toml:"allowed_media_types"`
	AllowedExtensions    []string `toml:"allowed_extensions"`
	DefaultAssets        []string `toml:"default_assets"`
	Naming               string   `toml:"naming"`
	MaxConcurrentUploads int      `toml:"max_concurrent_uploads"`
}

// SweepConfig defines the scheduled orphan sweep.
type SweepConfig struct {
	// Schedule is a cron expression; empty disables the scheduled sweep.
	Schedule string `toml:"schedule"`
	MinAge   string `toml:"min_age"`
	Apply    bool   `toml:"apply"`
}

// Config defines runtime configuration for edupanel.
type Config struct {
	APIURL                   string       `toml:"api_url"`
	DBPath                   string       `toml:"db_path"`
	LogLevel                 string       `toml:"log_level"`
	CatalogPath              string       `toml:"catalog_path"`
	Uploads                  UploadConfig `toml:"uploads"`
	Sweep                    SweepConfig  `toml:"sweep"`
	TrustedProjectConfigPath string       `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Uploads: UploadConfig{
			PublicPrefix:         DefaultPublicPrefix,
			MaxUploadBytes:       DefaultMaxUploadBytes,
			PhotoMaxUploadBytes:  DefaultPhotoMaxUploadBytes,
			MaxRequestBytes:      DefaultMaxRequestBytes,
			MultipartMaxMemory:   DefaultMultipartMemory,
			Naming:               string(models.NamingModeOpaque),
			MaxConcurrentUploads: DefaultMaxConcurrentUploads,
		},
		Sweep: SweepConfig{
			MinAge: DefaultSweepMinAge,
			Apply:  true,
		},
	}
}

// SweepMinAge returns the parsed sweep grace period.
func (c *Config) SweepMinAge() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Sweep.MinAge))
	if err != nil || d < 0 {
		d, _ = time.ParseDuration(DefaultSweepMinAge)
	}
	return d
}

// NamingMode returns the configured upload naming mode.
func (c *Config) NamingMode() models.NamingMode {
	return c.Uploads.NamingMode()
}

// NamingMode returns the configured naming mode, opaque when unset or invalid.
func (u UploadConfig) NamingMode() models.NamingMode {
	mode, err := models.ParseNamingMode(u.Naming)
	if err != nil {
		return models.NamingModeOpaque
	}
	return mode
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"catalog_path",
	"uploads.dir",
	"uploads.public_prefix",
	"uploads.public_base_url",
	"uploads.max_upload_bytes",
	"uploads.photo_max_upload_bytes",
	"uploads.max_request_bytes",
	"uploads.multipart_max_memory",
	"uploads.allowed_media_types",
	"uploads.allowed_extensions",
	"uploads.default_assets",
	"uploads.naming",
	"uploads.max_concurrent_uploads",
	"sweep.schedule",
	"sweep.min_age",
	"sweep.apply",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "catalog_path":
		return c.CatalogPath, nil
	case "uploads.dir":
		return c.Uploads.Dir, nil
	case "uploads.public_prefix":
		return c.Uploads.PublicPrefix, nil
	case "uploads.public_base_url":
		return c.Uploads.PublicBaseURL, nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.photo_max_upload_bytes":
		return strconv.FormatInt(c.Uploads.PhotoMaxUploadBytes, 10), nil
	case "uploads.max_request_bytes":
		return strconv.FormatInt(c.Uploads.MaxRequestBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "uploads.allowed_media_types":
		return strings.Join(c.Uploads.AllowedMediaTypes, ","), nil
	case "uploads.allowed_extensions":
		return strings.Join(c.Uploads.AllowedExtensions, ","), nil
	case "uploads.default_assets":
		return strings.Join(c.Uploads.DefaultAssets, ","), nil
	case "uploads.naming":
		return c.Uploads.Naming, nil
	case "uploads.max_concurrent_uploads":
		return strconv.Itoa(c.Uploads.MaxConcurrentUploads), nil
	case "sweep.schedule":
		return c.Sweep.Schedule, nil
	case "sweep.min_age":
		return c.Sweep.MinAge, nil
	case "sweep.apply":
		return strconv.FormatBool(c.Sweep.Apply), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
		if cfg.Uploads.Dir == "" {
			cfg.Uploads.Dir = filepath.Join(cwd, DefaultUploadDir)
		}
	}

	if v := os.Getenv(apiURLEnvKey); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv(dbPathEnvKey); v != "" {
		cfg.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv(logLevelEnvKey)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(catalogPathEnvKey)); v != "" {
		cfg.CatalogPath = v
	}
	if v := strings.TrimSpace(os.Getenv(uploadDirEnvKey)); v != "" {
		cfg.Uploads.Dir = v
	}
	if raw := strings.TrimSpace(os.Getenv(allowedMediaTypesEnvKey)); raw != "" {
		cfg.Uploads.AllowedMediaTypes = splitCSV(raw)
	}
	if v, ok := os.LookupEnv(sweepScheduleEnvKey); ok {
		cfg.Sweep.Schedule = strings.TrimSpace(v)
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

// Validate reports configuration values the server cannot run with.
func (c *Config) Validate() error {
	if _, err := models.ParseNamingMode(c.Uploads.Naming); err != nil {
		return fmt.Errorf("uploads.naming: %w", err)
	}
	if !strings.HasPrefix(c.Uploads.PublicPrefix, "/") || !strings.HasSuffix(c.Uploads.PublicPrefix, "/") {
		return fmt.Errorf("uploads.public_prefix must start and end with /")
	}
	if c.Uploads.PublicBaseURL != "" {
		if err := validateBaseURL(c.Uploads.PublicBaseURL); err != nil {
			return fmt.Errorf("uploads.public_base_url: %w", err)
		}
	}
	if _, err := time.ParseDuration(strings.TrimSpace(c.Sweep.MinAge)); err != nil {
		return fmt.Errorf("sweep.min_age: %w", err)
	}
	if c.Sweep.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("sweep.schedule: %w", err)
		}
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.photo_max_upload_bytes", "uploads.max_request_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.max_concurrent_uploads":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "sweep.apply":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "sweep.min_age":
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("%s must be a duration like 30m or 2h", key)
		}
		return value, nil
	case "sweep.schedule":
		if value != "" {
			if _, err := cron.ParseStandard(value); err != nil {
				return nil, fmt.Errorf("%s must be a cron expression: %w", key, err)
			}
		}
		return value, nil
	case "uploads.public_base_url":
		if value != "" {
			if err := validateBaseURL(value); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		}
		return value, nil
	case "uploads.naming":
		mode, err := models.ParseNamingMode(value)
		if err != nil {
			return nil, err
		}
		return string(mode), nil
	case "uploads.allowed_media_types", "uploads.allowed_extensions", "uploads.default_assets":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Uploads.PublicPrefix == "" {
		c.Uploads.PublicPrefix = DefaultPublicPrefix
	}
	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Uploads.PhotoMaxUploadBytes <= 0 {
		c.Uploads.PhotoMaxUploadBytes = DefaultPhotoMaxUploadBytes
	}
	if c.Uploads.MaxRequestBytes <= 0 {
		c.Uploads.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMemory
	}
	if c.Uploads.MaxConcurrentUploads <= 0 {
		c.Uploads.MaxConcurrentUploads = DefaultMaxConcurrentUploads
	}
	if strings.TrimSpace(c.Uploads.Naming) == "" {
		c.Uploads.Naming = string(models.NamingModeOpaque)
	}
	if strings.TrimSpace(c.Sweep.MinAge) == "" {
		c.Sweep.MinAge = DefaultSweepMinAge
	}
	c.Uploads.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Uploads.AllowedMediaTypes)
	c.Uploads.AllowedExtensions = normalizeExtensions(c.Uploads.AllowedExtensions)
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeExtensions lowercases entries and ensures a leading dot.
func normalizeExtensions(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		ext := strings.ToLower(strings.TrimSpace(raw))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
