package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/h2non/filetype"

	"edupanel/internal/blobstore"
	"edupanel/internal/catalog"
	"edupanel/internal/config"
	"edupanel/internal/store"
)

func readBlob(t *testing.T, blobs blobstore.BlobStore, key string) []byte {
	t.Helper()
	rc, err := blobs.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open %s: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return data
}

func TestProvisionDefaultAssetsWritesBundledAvatar(t *testing.T) {
	blobs := blobstore.NewMemory()
	srv := newTestServer(t, blobs)
	ctx := context.Background()

	for range 2 {
		if err := srv.ProvisionDefaultAssets(ctx); err != nil {
			t.Fatalf("provision: %v", err)
		}
	}
	want, _ := catalog.DefaultAssetContent(catalog.DefaultAvatarKey)
	got := readBlob(t, blobs, catalog.DefaultAvatarKey)
	if !bytes.Equal(got, want) {
		t.Fatal("provisioned avatar differs from bundled content")
	}
	if !filetype.IsImage(got) {
		t.Fatal("expected provisioned avatar to be an image")
	}
}

func TestProvisionDefaultAssetsKeepsExistingBlob(t *testing.T) {
	blobs := blobstore.NewMemory()
	custom := pngBytes(48)
	if _, err := blobs.Put(context.Background(), catalog.DefaultAvatarKey, bytes.NewReader(custom)); err != nil {
		t.Fatalf("seed avatar: %v", err)
	}
	srv := newTestServer(t, blobs)

	if err := srv.ProvisionDefaultAssets(context.Background()); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if got := readBlob(t, blobs, catalog.DefaultAvatarKey); !bytes.Equal(got, custom) {
		t.Fatal("expected operator supplied avatar to be kept")
	}
}

func TestDefaultAvatarFollowsPublicPrefix(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cat, err := catalog.New(catalog.DefaultResources())
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	blobs := blobstore.NewMemory()
	srv := New("127.0.0.1:0", st, blobs, cat, Options{
		Uploads: config.UploadConfig{PublicPrefix: "/files/", DefaultAssets: []string{"/files/defaults/logo.png"}},
		Logger:  discardLogger(),
	})
	if err := srv.ProvisionDefaultAssets(context.Background()); err != nil {
		t.Fatalf("provision: %v", err)
	}
	h := srv.Handler()

	w := doMultipart(t, h, http.MethodPost, "/api/teachers", map[string]string{"name": "Nasrin", "designation": "Librarian"})
	expectStatus(t, w, http.StatusCreated)
	rec := decodeRecord(t, w)
	if rec["photo"] != "/files/"+catalog.DefaultAvatarKey {
		t.Fatalf("expected avatar under configured prefix, got %v", rec["photo"])
	}

	w = doJSON(t, h, http.MethodGet, rec["photo"].(string), nil, nil)
	expectStatus(t, w, http.StatusOK)

	// Configured assets are never fabricated.
	if blobExists(t, blobs, "defaults/logo.png") {
		t.Fatal("expected configured asset without bundled content to stay absent")
	}
}
