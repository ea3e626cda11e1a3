package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"edupanel/internal/blobstore"
	"edupanel/internal/catalog"
	"edupanel/internal/config"
	"edupanel/internal/store"
)

const (
	allowRemoteEnvKey     = "EDUPANEL_ALLOW_REMOTE"
	readHeaderTimeout     = 5 * time.Second
	readTimeout           = 60 * time.Second
	writeTimeout          = 60 * time.Second
	idleTimeout           = 60 * time.Second
	sweepConcurrencyLimit = 1
	editorUploadSubdir    = "editor"
)

// Options configures a Server beyond its storage backends.
type Options struct {
	Uploads config.UploadConfig
	// Registry receives the server's metrics. A private registry is used
	// when nil.
	Registry *prometheus.Registry
	// SweepMinAge is the grace period of sweeps that do not name one.
	SweepMinAge time.Duration
	Logger      *slog.Logger
}

// Server wraps HTTP handlers for the edupanel API.
type Server struct {
	addr          string
	store         store.RecordStore
	blobs         blobstore.BlobStore
	catalog       *catalog.Catalog
	uploads       config.UploadConfig
	lifecycle     *AttachmentLifecycle
	sweeper       *OrphanSweeper
	sanitizer     *bluemonday.Policy
	metrics       *Metrics
	registry      *prometheus.Registry
	logger        *slog.Logger
	sweepMinAge   time.Duration
	uploadLimiter chan struct{}
	sweepLimiter  chan struct{}

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new server instance.
func New(addr string, recordStore store.RecordStore, blobs blobstore.BlobStore, cat *catalog.Catalog, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat, _ = catalog.New(catalog.DefaultResources())
	}
	uploads := opts.Uploads
	if uploads.PublicPrefix == "" {
		uploads.PublicPrefix = config.DefaultPublicPrefix
	}
	if uploads.MaxRequestBytes <= 0 {
		uploads.MaxRequestBytes = config.DefaultMaxRequestBytes
	}
	if uploads.MultipartMaxMemory <= 0 {
		uploads.MultipartMaxMemory = config.DefaultMultipartMemory
	}
	if uploads.MaxConcurrentUploads <= 0 {
		uploads.MaxConcurrentUploads = config.DefaultMaxConcurrentUploads
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := MustNewMetrics(registry)

	defaults := append([]string{}, uploads.DefaultAssets...)
	for _, key := range cat.DefaultAssets() {
		defaults = append(defaults, uploads.PublicPrefix+key)
	}
	lifecycle := NewAttachmentLifecycle(blobs, NewUploadGatekeeper(uploads), NewUploadNamer(uploads.NamingMode()), LifecycleOptions{
		PublicPrefix:  uploads.PublicPrefix,
		PublicOrigins: publicOrigins(uploads.PublicBaseURL),
		DefaultAssets: defaults,
		Metrics:       metrics,
		Logger:        logger,
	})

	return &Server{
		addr:          addr,
		store:         recordStore,
		blobs:         blobs,
		catalog:       cat,
		uploads:       uploads,
		lifecycle:     lifecycle,
		sweeper:       NewOrphanSweeper(recordStore, blobs, cat, lifecycle, metrics, logger),
		sanitizer:     bluemonday.UGCPolicy(),
		metrics:       metrics,
		registry:      registry,
		logger:        logger,
		sweepMinAge:   opts.SweepMinAge,
		uploadLimiter: make(chan struct{}, uploads.MaxConcurrentUploads),
		sweepLimiter:  make(chan struct{}, sweepConcurrencyLimit),
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Sweeper exposes the orphan sweeper for scheduled runs.
func (s *Server) Sweeper() *OrphanSweeper {
	return s.sweeper
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func publicOrigins(baseURL string) []string {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return []string{baseURL}
}
