package server

import (
	"fmt"
	"math/rand/v2"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"edupanel/internal/models"
)

const (
	nameSaltRange  = 1_000_000_000
	maxSlugRunes   = 40
	maxFieldPrefix = 40
	fallbackPrefix = "file"
)

// UploadNamer derives stored file names from the field name, the upload
// time and a random salt. It holds no per-request state.
type UploadNamer struct {
	mode models.NamingMode
	now  func() time.Time
	salt func() int64
}

// NewUploadNamer creates a namer using the wall clock and math/rand.
func NewUploadNamer(mode models.NamingMode) *UploadNamer {
	return &UploadNamer{
		mode: mode,
		now:  time.Now,
		salt: func() int64 { return rand.Int64N(nameSaltRange) },
	}
}

// Name returns the blob key for one upload: subdir/{field}-{millis}-{salt}{ext}.
// ext is the extension the gatekeeper settled on, not the client's. In
// keep_original mode a slug of the original base name is appended before it.
func (n *UploadNamer) Name(subdir, field, originalName, ext string) string {
	ext = strings.ToLower(ext)
	if !validExtension(ext) {
		ext = ""
	}
	prefix := slug.Make(field)
	if prefix == "" {
		prefix = fallbackPrefix
	}
	if len(prefix) > maxFieldPrefix {
		prefix = prefix[:maxFieldPrefix]
	}

	name := fmt.Sprintf("%s-%d-%d", prefix, n.now().UnixMilli(), n.salt())
	if n.mode == models.NamingModeKeepOriginal {
		base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
		if s := truncateSlug(slug.Make(base)); s != "" {
			name += "-" + s
		}
	}
	name += ext

	if subdir == "" {
		return name
	}
	return path.Join(subdir, name)
}

func truncateSlug(s string) string {
	if len(s) <= maxSlugRunes {
		return s
	}
	return strings.TrimRight(s[:maxSlugRunes], "-")
}

func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
