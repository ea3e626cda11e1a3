package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalDirPutOpenDelete(t *testing.T) {
	dir, err := NewLocalDir(t.TempDir())
	if err != nil {
		t.Fatalf("new local dir: %v", err)
	}
	ctx := context.Background()

	res, err := dir.Put(ctx, "circulars/attachment-1-2.pdf", bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if res.Key != "circulars/attachment-1-2.pdf" || res.SizeBytes != 5 {
		t.Fatalf("unexpected put result: %#v", res)
	}
	if _, err := os.Stat(filepath.Join(dir.Root(), "circulars", "attachment-1-2.pdf")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	rc, err := dir.Open(ctx, res.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	exists, err := dir.Exists(ctx, res.Key)
	if err != nil || !exists {
		t.Fatalf("expected blob to exist: exists=%v err=%v", exists, err)
	}

	deleted, err := dir.Delete(ctx, res.Key)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = dir.Delete(ctx, res.Key)
	if err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to report false")
	}
}

func TestLocalDirPutNeverOverwrites(t *testing.T) {
	dir, err := NewLocalDir(t.TempDir())
	if err != nil {
		t.Fatalf("new local dir: %v", err)
	}
	ctx := context.Background()

	if _, err := dir.Put(ctx, "image-1-1.png", bytes.NewBufferString("first")); err != nil {
		t.Fatalf("put first: %v", err)
	}
	_, err = dir.Put(ctx, "image-1-1.png", bytes.NewBufferString("second"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	rc, err := dir.Open(ctx, "image-1-1.png")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "first" {
		t.Fatalf("expected original content to survive, got %q", string(data))
	}
}

func TestLocalDirListSkipsTemp(t *testing.T) {
	dir, err := NewLocalDir(t.TempDir())
	if err != nil {
		t.Fatalf("new local dir: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"a.txt", "photos/b.png"} {
		if _, err := dir.Put(ctx, key, bytes.NewBufferString(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir.Root(), tmpDirName, "put-stale"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stale temp: %v", err)
	}

	blobs, err := dir.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := map[string]int64{}
	for _, b := range blobs {
		got[b.Key] = b.SizeBytes
	}
	if len(got) != 2 || got["a.txt"] != 5 || got["photos/b.png"] != 12 {
		t.Fatalf("unexpected listing: %#v", got)
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a.png", want: "a.png"},
		{key: "circulars/./a.pdf", want: "circulars/a.pdf"},
		{key: "", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "../secret", wantErr: true},
		{key: "a/../../b", wantErr: true},
		{key: `a\b`, wantErr: true},
		{key: ".tmp/put-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
