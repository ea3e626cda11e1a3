package server

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"edupanel/internal/config"
	"edupanel/internal/models"
)

// sniffHeaderBytes is how much of a file the gatekeeper inspects.
const sniffHeaderBytes = 261

var imageMediaTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

var generalMediaTypes = append(append([]string{}, imageMediaTypes...),
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/csv",
	"application/octet-stream",
)

var generalExtensions = append(append([]string{}, imageExtensions...),
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv",
)

// Preferred stored extension per media type, tried before the system table.
var preferredExtensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"text/plain":         ".txt",
	"text/csv":           ".csv",
}

// Sniffed kinds that are never stored, whatever the client declared.
var blockedSniffedExtensions = map[string]struct{}{
	"exe": {},
	"elf": {},
	"dex": {},
	"swf": {},
	"crx": {},
}

// UploadPolicy is the accept policy of one upload profile.
type UploadPolicy struct {
	MaxBytes   int64
	MediaTypes map[string]struct{}
	Extensions map[string]struct{}
	ImagesOnly bool
}

// UploadCandidate is the metadata of one file part awaiting a decision.
type UploadCandidate struct {
	Field        string
	OriginalName string
	DeclaredType string
	Size         int64
	// Header holds the leading bytes of the content, if already read.
	Header []byte
}

// GateDecision carries what the gatekeeper learned about an accepted file.
type GateDecision struct {
	MimeType  string
	Extension string
}

// UploadGatekeeper accepts or rejects upload candidates before any bytes
// reach the blob store.
type UploadGatekeeper struct {
	policies map[models.UploadProfile]UploadPolicy
}

// NewUploadGatekeeper builds the general and photo policies from config.
func NewUploadGatekeeper(cfg config.UploadConfig) *UploadGatekeeper {
	generalTypes := generalMediaTypes
	if len(cfg.AllowedMediaTypes) > 0 {
		generalTypes = cfg.AllowedMediaTypes
	}
	generalExts := generalExtensions
	if len(cfg.AllowedExtensions) > 0 {
		generalExts = cfg.AllowedExtensions
	}
	generalMax := cfg.MaxUploadBytes
	if generalMax <= 0 {
		generalMax = config.DefaultMaxUploadBytes
	}
	photoMax := cfg.PhotoMaxUploadBytes
	if photoMax <= 0 {
		photoMax = config.DefaultPhotoMaxUploadBytes
	}

	return &UploadGatekeeper{policies: map[models.UploadProfile]UploadPolicy{
		models.UploadProfileGeneral: {
			MaxBytes:   generalMax,
			MediaTypes: toSet(generalTypes),
			Extensions: toSet(generalExts),
		},
		models.UploadProfilePhoto: {
			MaxBytes:   photoMax,
			MediaTypes: toSet(imageMediaTypes),
			Extensions: toSet(imageExtensions),
			ImagesOnly: true,
		},
	}}
}

// Policy returns the policy for profile, falling back to general.
func (g *UploadGatekeeper) Policy(profile models.UploadProfile) UploadPolicy {
	if policy, ok := g.policies[profile]; ok {
		return policy
	}
	return g.policies[models.UploadProfileGeneral]
}

// Check decides one candidate. Acceptance needs the declared media type OR
// the lowercased extension to be allowed; clients misreport Office types.
func (g *UploadGatekeeper) Check(profile models.UploadProfile, c UploadCandidate) (GateDecision, error) {
	policy := g.Policy(profile)
	name := c.OriginalName
	if name == "" {
		name = c.Field
	}

	if c.Size <= 0 {
		return GateDecision{}, badRequestCode(fmt.Errorf("file %q for %s is empty", name, c.Field), ErrCodeInvalidFile)
	}
	if c.Size > policy.MaxBytes {
		return GateDecision{}, badRequestCode(fmt.Errorf("file %q for %s exceeds %d bytes", name, c.Field, policy.MaxBytes), ErrCodeFileTooLarge)
	}

	declared := normalizeMediaType(c.DeclaredType)
	ext := strings.ToLower(filepath.Ext(c.OriginalName))
	_, typeOK := policy.MediaTypes[declared]
	_, extOK := policy.Extensions[ext]
	if !typeOK && !extOK {
		return GateDecision{}, badRequestCode(fmt.Errorf("file type %q (%q) is not allowed for %s", declared, ext, c.Field), ErrCodeInvalidFile)
	}

	if policy.ImagesOnly && !filetype.IsImage(c.Header) {
		return GateDecision{}, badRequestCode(fmt.Errorf("file %q for %s is not an image", name, c.Field), ErrCodeInvalidFile)
	}

	decision := GateDecision{MimeType: declared, Extension: ext}
	if len(c.Header) > 0 {
		kind, err := filetype.Match(c.Header)
		if err == nil && kind != filetype.Unknown {
			if _, blocked := blockedSniffedExtensions[kind.Extension]; blocked {
				return GateDecision{}, badRequestCode(fmt.Errorf("file %q for %s has disallowed content", name, c.Field), ErrCodeInvalidFile)
			}
			if declared == "" || declared == "application/octet-stream" {
				decision.MimeType = kind.MIME.Value
			}
		}
	}
	if decision.MimeType == "" && ext != "" {
		decision.MimeType = normalizeMediaType(mime.TypeByExtension(ext))
	}
	if decision.MimeType == "" {
		decision.MimeType = "application/octet-stream"
	}
	// The stored extension decides how the blob is served, so a name the
	// policy does not allow is replaced by one matching the accepted type.
	if !extOK {
		decision.Extension = extensionForType(policy, decision.MimeType)
	}
	return decision, nil
}

// extensionForType returns an allowed extension for mediaType, or "" when
// the policy allows none.
func extensionForType(policy UploadPolicy, mediaType string) string {
	if ext, ok := preferredExtensions[mediaType]; ok {
		if _, allowed := policy.Extensions[ext]; allowed {
			return ext
		}
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil {
		return ""
	}
	for _, ext := range exts {
		if _, allowed := policy.Extensions[strings.ToLower(ext)]; allowed {
			return strings.ToLower(ext)
		}
	}
	return ""
}

func normalizeMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return strings.ToLower(parsed)
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return out
}
