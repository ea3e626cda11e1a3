package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process BlobStore used by tests.
type Memory struct {
	mu    sync.Mutex
	blobs map[string]memoryBlob

	// FailPut, when set, is consulted before every Put.
	FailPut func(key string) error
	// FailDelete, when set, is consulted before every Delete.
	FailDelete func(key string) error
}

type memoryBlob struct {
	data    []byte
	modTime time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: map[string]memoryBlob{}}
}

func (m *Memory) Put(ctx context.Context, key string, r io.Reader) (BlobPutResult, error) {
	var zero BlobPutResult
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	clean, err := CleanKey(key)
	if err != nil {
		return zero, err
	}
	if m.FailPut != nil {
		if err := m.FailPut(clean); err != nil {
			return zero, err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[clean]; ok {
		return zero, fmt.Errorf("%w: %s", ErrExists, clean)
	}
	m.blobs[clean] = memoryBlob{data: data, modTime: time.Now()}
	return BlobPutResult{Key: clean, SizeBytes: int64(len(data))}, nil
}

func (m *Memory) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.FailDelete != nil {
		if err := m.FailDelete(key); err != nil {
			return false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return false, nil
	}
	delete(m.blobs, key)
	return true, nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *Memory) List(ctx context.Context) ([]BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BlobInfo, 0, len(m.blobs))
	for key, blob := range m.blobs {
		out = append(out, BlobInfo{Key: key, SizeBytes: int64(len(blob.data)), ModTime: blob.modTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.blobs))
	for key := range m.blobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Age backdates a stored blob, for sweep tests.
func (m *Memory) Age(key string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blob, ok := m.blobs[key]; ok {
		blob.modTime = blob.modTime.Add(-d)
		m.blobs[key] = blob
	}
}

var (
	_ BlobStore = (*LocalDir)(nil)
	_ BlobStore = (*Memory)(nil)
)
