package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrExists is returned by Put when the key is already taken. Puts never
// overwrite existing content.
var ErrExists = errors.New("blob already exists")

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	Key       string
	SizeBytes int64
}

// BlobInfo describes one stored blob as seen by List.
type BlobInfo struct {
	Key       string
	SizeBytes int64
	ModTime   time.Time
}

// BlobStore is the byte-storage abstraction used by the attachment lifecycle.
//
// Keys are slash-separated paths relative to the store root, for example
// "circulars/attachment-1718000000000-42.pdf".
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (BlobPutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]BlobInfo, error)
}
