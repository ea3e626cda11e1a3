package server

import (
	"net/http"
	"testing"

	"edupanel/internal/config"
	"edupanel/internal/models"
)

func TestUploadGatekeeperCheck(t *testing.T) {
	gate := NewUploadGatekeeper(config.UploadConfig{})

	tests := []struct {
		name     string
		profile  models.UploadProfile
		cand     UploadCandidate
		wantCode int
		wantMime string
		wantExt  string
	}{
		{
			name:     "declared image accepted",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "image", OriginalName: "a.png", DeclaredType: "image/png", Size: 10},
			wantMime: "image/png",
			wantExt:  ".png",
		},
		{
			name:     "office file with unknown mime accepted by extension",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "Report.DOCX", DeclaredType: "application/x-unknown", Size: 10},
			wantMime: "application/x-unknown",
			wantExt:  ".docx",
		},
		{
			name:     "mime accepted without extension",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "scan", DeclaredType: "application/pdf; charset=binary", Size: 10},
			wantMime: "application/pdf",
			wantExt:  ".pdf",
		},
		{
			name:     "markup named as html stored under declared image extension",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "image", OriginalName: "x.html", DeclaredType: "image/png", Size: 64, Header: []byte("<html><script>alert(1)</script></html>")},
			wantMime: "image/png",
			wantExt:  ".png",
		},
		{
			name:     "disallowed extension with opaque type stored without extension",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "page.html", DeclaredType: "application/octet-stream", Size: 64, Header: []byte("<html></html>")},
			wantMime: "application/octet-stream",
			wantExt:  "",
		},
		{
			name:     "generic type replaced by sniffed type",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "file.bin", DeclaredType: "application/octet-stream", Size: 64, Header: pngBytes(64)},
			wantMime: "image/png",
			wantExt:  ".png",
		},
		{
			name:     "missing type derived from extension",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "scan.PDF", Size: 10, Header: []byte("plain words")},
			wantMime: "application/pdf",
			wantExt:  ".pdf",
		},
		{
			name:     "both type and extension outside allow-list",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "run.sh", DeclaredType: "application/x-sh", Size: 10},
			wantCode: ErrCodeInvalidFile,
		},
		{
			name:     "general ceiling",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "image", OriginalName: "a.png", DeclaredType: "image/png", Size: config.DefaultMaxUploadBytes + 1},
			wantCode: ErrCodeFileTooLarge,
		},
		{
			name:     "photo ceiling",
			profile:  models.UploadProfilePhoto,
			cand:     UploadCandidate{Field: "photo", OriginalName: "a.png", DeclaredType: "image/png", Size: config.DefaultPhotoMaxUploadBytes + 1},
			wantCode: ErrCodeFileTooLarge,
		},
		{
			name:     "photo rejects documents",
			profile:  models.UploadProfilePhoto,
			cand:     UploadCandidate{Field: "photo", OriginalName: "cv.pdf", DeclaredType: "application/pdf", Size: 10},
			wantCode: ErrCodeInvalidFile,
		},
		{
			name:     "photo rejects non-image content behind image name",
			profile:  models.UploadProfilePhoto,
			cand:     UploadCandidate{Field: "photo", OriginalName: "me.png", DeclaredType: "image/png", Size: 64, Header: pdfBytes(64)},
			wantCode: ErrCodeInvalidFile,
		},
		{
			name:     "photo rejects markup declared as image",
			profile:  models.UploadProfilePhoto,
			cand:     UploadCandidate{Field: "photo", OriginalName: "x.html", DeclaredType: "image/png", Size: 64, Header: []byte("<html><script>alert(1)</script></html>")},
			wantCode: ErrCodeInvalidFile,
		},
		{
			name:     "photo rejects content it cannot read",
			profile:  models.UploadProfilePhoto,
			cand:     UploadCandidate{Field: "photo", OriginalName: "me.png", DeclaredType: "image/png", Size: 10},
			wantCode: ErrCodeInvalidFile,
		},
		{
			name:     "photo accepts sniffed image",
			profile:  models.UploadProfilePhoto,
			cand:     UploadCandidate{Field: "photo", OriginalName: "me.jpeg", DeclaredType: "image/jpeg", Size: 64, Header: pngBytes(64)},
			wantMime: "image/jpeg",
			wantExt:  ".jpeg",
		},
		{
			name:     "executable content rejected",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "notes.txt", DeclaredType: "text/plain", Size: 64, Header: append([]byte("\x7fELF"), make([]byte, 60)...)},
			wantCode: ErrCodeInvalidFile,
		},
		{
			name:     "empty file rejected",
			profile:  models.UploadProfileGeneral,
			cand:     UploadCandidate{Field: "attachment", OriginalName: "a.txt", DeclaredType: "text/plain"},
			wantCode: ErrCodeInvalidFile,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.Check(tc.profile, tc.cand)
			if tc.wantCode != 0 {
				assertAPIError(t, err, http.StatusBadRequest, tc.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decision.MimeType != tc.wantMime {
				t.Fatalf("expected mime %q, got %q", tc.wantMime, decision.MimeType)
			}
			if decision.Extension != tc.wantExt {
				t.Fatalf("expected extension %q, got %q", tc.wantExt, decision.Extension)
			}
		})
	}
}

func TestUploadGatekeeperConfigOverrides(t *testing.T) {
	gate := NewUploadGatekeeper(config.UploadConfig{
		MaxUploadBytes:    100,
		AllowedMediaTypes: []string{"application/pdf"},
		AllowedExtensions: []string{".pdf"},
	})

	if _, err := gate.Check(models.UploadProfileGeneral, UploadCandidate{Field: "f", OriginalName: "a.png", DeclaredType: "image/png", Size: 10}); err == nil {
		t.Fatal("expected png to be rejected by configured allow-list")
	}
	if _, err := gate.Check(models.UploadProfileGeneral, UploadCandidate{Field: "f", OriginalName: "a.pdf", DeclaredType: "application/pdf", Size: 101}); err == nil {
		t.Fatal("expected configured size ceiling to apply")
	}
	if _, err := gate.Check(models.UploadProfileGeneral, UploadCandidate{Field: "f", OriginalName: "a.pdf", DeclaredType: "application/pdf", Size: 100}); err != nil {
		t.Fatalf("expected pdf at ceiling to pass: %v", err)
	}
	// The photo profile keeps its own image-only policy.
	if _, err := gate.Check(models.UploadProfilePhoto, UploadCandidate{Field: "photo", OriginalName: "a.png", DeclaredType: "image/png", Size: 64, Header: pngBytes(64)}); err != nil {
		t.Fatalf("expected photo upload to pass: %v", err)
	}
}
