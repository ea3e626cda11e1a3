package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"edupanel/internal/blobstore"
)

func storedKeys(t *testing.T, srv *Server) []string {
	t.Helper()
	blobs, err := srv.blobs.List(context.Background())
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	keys := make([]string, 0, len(blobs))
	for _, blob := range blobs {
		keys = append(keys, blob.Key)
	}
	return keys
}

func diskPath(dir, publicPath string) string {
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(publicPath, "/api/uploads/")))
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("stat %s: %v", path, err)
	return false
}

func TestCreateBannerStoresFileOnDisk(t *testing.T) {
	srv, dir := newDiskServer(t)
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/banners", map[string]string{"title": "Spring Sale"},
		formFile{field: "image", name: "sale.png", contentType: "image/png", data: pngBytes(3 << 20)})
	expectStatus(t, w, http.StatusCreated)

	rec := decodeRecord(t, w)
	image, _ := rec["image"].(string)
	if !regexp.MustCompile(`^/api/uploads/banners/image-\d+-\d+\.png$`).MatchString(image) {
		t.Fatalf("unexpected image path %q", image)
	}
	if rec["title"] != "Spring Sale" {
		t.Fatalf("unexpected title: %v", rec["title"])
	}
	info, err := os.Stat(diskPath(dir, image))
	if err != nil {
		t.Fatalf("expected stored file: %v", err)
	}
	if info.Size() != 3<<20 {
		t.Fatalf("expected %d bytes on disk, got %d", 3<<20, info.Size())
	}
}

func TestCreateRejectsOversizedUploadWithoutWriting(t *testing.T) {
	srv, _ := newDiskServer(t)
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/banners", map[string]string{"title": "Huge"},
		formFile{field: "image", name: "huge.png", contentType: "image/png", data: pngBytes(15 << 20)})
	expectStatus(t, w, http.StatusBadRequest)
	if env := decodeEnvelope(t, w); env.ErrorCode != ErrCodeFileTooLarge {
		t.Fatalf("expected error code %d, got %d", ErrCodeFileTooLarge, env.ErrorCode)
	}
	if keys := storedKeys(t, srv); len(keys) != 0 {
		t.Fatalf("expected no stored files, got %v", keys)
	}
}

func TestCreateDuplicateTitleRemovesUpload(t *testing.T) {
	srv, _ := newDiskServer(t)
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/documents", map[string]string{"title": "Annual Report"},
		formFile{field: "attachment", name: "report.pdf", contentType: "application/pdf", data: pdfBytes(512)})
	expectStatus(t, w, http.StatusCreated)
	first := storedKeys(t, srv)
	if len(first) != 1 {
		t.Fatalf("expected one stored file, got %v", first)
	}

	w = doMultipart(t, h, http.MethodPost, "/api/documents", map[string]string{"title": "annual report"},
		formFile{field: "attachment", name: "report.pdf", contentType: "application/pdf", data: pdfBytes(512)})
	expectStatus(t, w, http.StatusBadRequest)
	env := decodeEnvelope(t, w)
	if env.Error != "conflict" || env.ErrorCode != ErrCodeDuplicate {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if keys := storedKeys(t, srv); len(keys) != 1 || keys[0] != first[0] {
		t.Fatalf("expected only the first upload to remain, got %v", keys)
	}
}

func TestUpdatePhotoOnlyReplacesOldFile(t *testing.T) {
	srv, dir := newDiskServer(t)
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/teachers", map[string]string{"name": "Rahima Khatun", "designation": "Senior Teacher"},
		formFile{field: "photo", name: "old.png", contentType: "image/png", data: pngBytes(256)})
	expectStatus(t, w, http.StatusCreated)
	created := decodeRecord(t, w)
	oldPhoto := created["photo"].(string)
	id := created["id"].(string)

	w = doMultipart(t, h, http.MethodPut, "/api/teachers/"+id, nil,
		formFile{field: "photo", name: "new.png", contentType: "image/png", data: pngBytes(300)})
	expectStatus(t, w, http.StatusOK)
	updated := decodeRecord(t, w)
	newPhoto := updated["photo"].(string)

	if newPhoto == oldPhoto {
		t.Fatal("expected photo path to change")
	}
	if updated["name"] != "Rahima Khatun" || updated["designation"] != "Senior Teacher" {
		t.Fatalf("expected other fields unchanged: %v", updated)
	}
	if fileExists(t, diskPath(dir, oldPhoto)) {
		t.Fatalf("expected superseded file %s to be deleted", oldPhoto)
	}
	if !fileExists(t, diskPath(dir, newPhoto)) {
		t.Fatalf("expected new file %s on disk", newPhoto)
	}
}

func TestCreateTeacherWithoutPhotoUsesDefaultAvatar(t *testing.T) {
	srv, dir := newDiskServer(t)
	if err := srv.ProvisionDefaultAssets(context.Background()); err != nil {
		t.Fatalf("provision defaults: %v", err)
	}
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/teachers", map[string]string{"name": "Karim", "designation": "Assistant Teacher"})
	expectStatus(t, w, http.StatusCreated)
	rec := decodeRecord(t, w)
	if rec["photo"] != "/api/uploads/defaults/avatar.png" {
		t.Fatalf("expected default avatar, got %v", rec["photo"])
	}

	w = doJSON(t, h, http.MethodGet, rec["photo"].(string), nil, nil)
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png avatar, got %q", got)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/teachers/"+rec["id"].(string), nil, nil)
	expectStatus(t, w, http.StatusOK)
	if !fileExists(t, diskPath(dir, rec["photo"].(string))) {
		t.Fatal("expected default avatar to survive record delete")
	}
}

func TestDeletePhotoRemovesFileAndRecord(t *testing.T) {
	srv, dir := newDiskServer(t)
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/photos", map[string]string{"title": "Sports Day"},
		formFile{field: "image", name: "sports.jpg", contentType: "image/png", data: pngBytes(1024)})
	expectStatus(t, w, http.StatusCreated)
	rec := decodeRecord(t, w)
	image := rec["image"].(string)

	w = doJSON(t, h, http.MethodDelete, "/api/photos/"+rec["id"].(string), nil, nil)
	expectStatus(t, w, http.StatusOK)
	var report struct {
		ID           string `json:"id"`
		DeletedFiles int    `json:"deletedFiles"`
		FailedFiles  int    `json:"failedFiles"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &report); err != nil {
		t.Fatalf("decode delete report: %v", err)
	}
	if report.DeletedFiles != 1 || report.FailedFiles != 0 {
		t.Fatalf("unexpected delete report: %+v", report)
	}
	if fileExists(t, diskPath(dir, image)) {
		t.Fatalf("expected %s to be deleted", image)
	}

	w = doJSON(t, h, http.MethodGet, "/api/photos", nil, nil)
	expectStatus(t, w, http.StatusOK)
	env := decodeEnvelope(t, w)
	if env.Meta == nil || env.Meta.Total != 0 {
		t.Fatalf("expected empty listing, got meta %+v", env.Meta)
	}

	w = doJSON(t, h, http.MethodGet, "/api/photos/"+rec["id"].(string), nil, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestSliderRequiresImages(t *testing.T) {
	srv, _ := newDiskServer(t)
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/sliders", map[string]string{"title": "Welcome"})
	expectStatus(t, w, http.StatusBadRequest)
	if env := decodeEnvelope(t, w); env.ErrorCode != ErrCodeMissingFile {
		t.Fatalf("expected error code %d, got %d", ErrCodeMissingFile, env.ErrorCode)
	}
	if keys := storedKeys(t, srv); len(keys) != 0 {
		t.Fatalf("expected no stored files, got %v", keys)
	}

	w = doMultipart(t, h, http.MethodPost, "/api/sliders", map[string]string{"title": "Welcome"},
		formFile{field: "images[]", name: "a.png", contentType: "image/png", data: pngBytes(64)},
		formFile{field: "images[]", name: "b.png", contentType: "image/png", data: pngBytes(64)})
	expectStatus(t, w, http.StatusCreated)
	rec := decodeRecord(t, w)
	images, ok := rec["images"].([]any)
	if !ok || len(images) != 2 {
		t.Fatalf("expected two image paths, got %v", rec["images"])
	}
}

func TestCreateRejectsUnknownFileField(t *testing.T) {
	srv := newTestServer(t, blobstore.NewMemory())
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/banners", map[string]string{"title": "X"},
		formFile{field: "image", name: "a.png", contentType: "image/png", data: pngBytes(64)},
		formFile{field: "avatar", name: "b.png", contentType: "image/png", data: pngBytes(64)})
	expectStatus(t, w, http.StatusBadRequest)
	if env := decodeEnvelope(t, w); env.ErrorCode != ErrCodeUnknownFile {
		t.Fatalf("expected error code %d, got %d", ErrCodeUnknownFile, env.ErrorCode)
	}
	if keys := storedKeys(t, srv); len(keys) != 0 {
		t.Fatalf("expected no stored files, got %v", keys)
	}
}

func TestJSONWritesAndVersionConflict(t *testing.T) {
	srv := newTestServer(t, blobstore.NewMemory())
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/blogs", map[string]any{
		"title": "Open Day",
		"body":  `<p>Welcome</p><script>alert(1)</script>`,
	}, nil)
	expectStatus(t, w, http.StatusCreated)
	rec := decodeRecord(t, w)
	if body := rec["body"].(string); strings.Contains(body, "<script") || !strings.Contains(body, "Welcome") {
		t.Fatalf("expected sanitized body, got %q", body)
	}
	id := rec["id"].(string)

	w = doJSON(t, h, http.MethodPut, "/api/blogs/"+id, map[string]any{"title": "Open Day 2026", "version": 1}, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decodeRecord(t, w); got["title"] != "Open Day 2026" || got["version"] != float64(2) {
		t.Fatalf("unexpected update result: %v", got)
	}

	w = doJSON(t, h, http.MethodPut, "/api/blogs/"+id, map[string]any{"title": "Stale", "version": 1}, nil)
	expectStatus(t, w, http.StatusConflict)
	if env := decodeEnvelope(t, w); env.ErrorCode != ErrCodeConflict {
		t.Fatalf("expected error code %d, got %d", ErrCodeConflict, env.ErrorCode)
	}
}

func TestRecordRequestValidation(t *testing.T) {
	srv := newTestServer(t, blobstore.NewMemory())
	h := srv.Handler()

	tests := []struct {
		name     string
		method   string
		target   string
		payload  any
		status   int
		wantCode int
	}{
		{name: "invalid id", method: http.MethodGet, target: "/api/banners/not-a-uuid", status: http.StatusBadRequest, wantCode: ErrCodeInvalidID},
		{name: "missing record", method: http.MethodGet, target: "/api/banners/7b0c1f1e-2f55-4c7b-9a43-0c3b0f6f0a11", status: http.StatusNotFound, wantCode: ErrCodeRecordNotFound},
		{name: "delete missing record", method: http.MethodDelete, target: "/api/banners/7b0c1f1e-2f55-4c7b-9a43-0c3b0f6f0a11", status: http.StatusNotFound, wantCode: ErrCodeRecordNotFound},
		{name: "limit too large", method: http.MethodGet, target: "/api/banners?limit=501", status: http.StatusBadRequest, wantCode: ErrCodeInvalidQuery},
		{name: "negative offset", method: http.MethodGet, target: "/api/banners?offset=-1", status: http.StatusBadRequest, wantCode: ErrCodeInvalidQuery},
		{name: "missing required field", method: http.MethodPost, target: "/api/blogs", payload: map[string]any{"title": "No body"}, status: http.StatusBadRequest, wantCode: ErrCodeInvalidField},
		{name: "bad version", method: http.MethodPost, target: "/api/blogs", payload: map[string]any{"title": "T", "body": "b", "version": "x"}, status: http.StatusBadRequest, wantCode: ErrCodeInvalidField},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, tc.method, tc.target, tc.payload, nil)
			expectStatus(t, w, tc.status)
			env := decodeEnvelope(t, w)
			if env.Success {
				t.Fatal("expected success=false")
			}
			if env.ErrorCode != tc.wantCode {
				t.Fatalf("expected error code %d, got %d (%s)", tc.wantCode, env.ErrorCode, env.Message)
			}
		})
	}
}

func TestListRecordsSearchAndPaging(t *testing.T) {
	srv := newTestServer(t, blobstore.NewMemory())
	h := srv.Handler()

	for _, title := range []string{"Science Fair", "Sports Day", "Science Olympiad"} {
		w := doJSON(t, h, http.MethodPost, "/api/notices", map[string]any{"title": title}, nil)
		expectStatus(t, w, http.StatusCreated)
	}

	w := doJSON(t, h, http.MethodGet, "/api/notices?search=science&limit=1", nil, nil)
	expectStatus(t, w, http.StatusOK)
	env := decodeEnvelope(t, w)
	if env.Meta == nil || env.Meta.Total != 2 || env.Meta.Limit != 1 {
		t.Fatalf("unexpected meta: %+v", env.Meta)
	}
	var page []map[string]any
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected one record on the page, got %d", len(page))
	}
}

func TestCreateStoresMarkupUnderAcceptedImageType(t *testing.T) {
	srv, dir := newDiskServer(t)
	h := srv.Handler()
	markup := []byte("<html><body><script>alert(document.cookie)</script></body></html>")

	w := doMultipart(t, h, http.MethodPost, "/api/banners", map[string]string{"title": "Open Day"},
		formFile{field: "image", name: "x.html", contentType: "image/png", data: markup})
	expectStatus(t, w, http.StatusCreated)
	image, _ := decodeRecord(t, w)["image"].(string)
	if !strings.HasSuffix(image, ".png") {
		t.Fatalf("expected stored key to carry the accepted type extension, got %q", image)
	}
	if !fileExists(t, diskPath(dir, image)) {
		t.Fatalf("expected stored file %s", image)
	}

	w = doJSON(t, h, http.MethodGet, image, nil, nil)
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}

	before := storedKeys(t, srv)
	w = doMultipart(t, h, http.MethodPost, "/api/teachers", map[string]string{"name": "Karim", "designation": "Assistant Teacher"},
		formFile{field: "photo", name: "x.html", contentType: "image/png", data: markup})
	expectStatus(t, w, http.StatusBadRequest)
	if env := decodeEnvelope(t, w); env.ErrorCode != ErrCodeInvalidFile {
		t.Fatalf("expected error code %d, got %d", ErrCodeInvalidFile, env.ErrorCode)
	}
	if after := storedKeys(t, srv); len(after) != len(before) {
		t.Fatalf("expected rejected photo to leave storage untouched, got %v", after)
	}
}
