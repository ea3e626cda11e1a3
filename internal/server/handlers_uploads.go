package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"edupanel/internal/api"
	"edupanel/internal/blobstore"
)

const editorFileField = "file"

// handleEditorUpload stores an image inserted by a rich-text editor. The
// blob is owned by whichever body embeds its URL.
func (s *Server) handleEditorUpload(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxRequestBytes)
		if err := r.ParseMultipartForm(s.uploads.MultipartMaxMemory); err != nil {
			s.writeServiceError(w, r, classifyMultipartError(err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers := r.MultipartForm.File[editorFileField]
		if len(headers) == 0 {
			s.writeServiceError(w, r, badRequestCode(fmt.Errorf("%s is required", editorFileField), ErrCodeMissingFile))
			return
		}
		if len(headers) > 1 {
			s.writeServiceError(w, r, badRequestCode(fmt.Errorf("%s accepts one file", editorFileField), ErrCodeTooManyFiles))
			return
		}

		ref, err := s.lifecycle.StageStandalone(r.Context(), editorUploadSubdir, candidateFromHeader(editorFileField, headers[0]))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeData(w, http.StatusCreated, "file uploaded", api.UploadResponse{
			URL:          ref.StoragePath,
			OriginalName: ref.OriginalName,
			SizeBytes:    ref.SizeBytes,
			MimeType:     ref.MimeType,
		})
	})
}

// handleServeUpload streams a stored blob with a content type derived from
// its extension.
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	key, err := blobstore.CleanKey(r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, r, notFoundCode(fmt.Errorf("file not found"), ErrCodeBlobNotFound))
		return
	}
	rc, err := s.blobs.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeServiceError(w, r, notFoundCode(fmt.Errorf("file not found"), ErrCodeBlobNotFound))
			return
		}
		s.writeServiceError(w, r, storageFailure(err))
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if !inlineSafe(contentType) {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	}

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(key), time.Time{}, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Warn("stream upload", "key", key, "error", err)
	}
}

// inlineSafe reports whether a stored type may render in the browser.
// Anything that can carry script is sent as a download.
func inlineSafe(contentType string) bool {
	mediaType := normalizeMediaType(contentType)
	switch {
	case mediaType == "image/svg+xml":
		return false
	case strings.HasPrefix(mediaType, "image/"):
		return true
	}
	switch mediaType {
	case "application/pdf", "text/plain", "text/csv":
		return true
	}
	return false
}
