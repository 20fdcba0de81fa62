// Package storage provides the content-addressable blob store used to pass
// audio payloads between the ingestion surface and the orchestrator.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"ai-call-insight-service/internal/observability/metrics"
)

// ErrNotFound is returned when a handle is unknown.
var ErrNotFound = errors.New("blob not found")

// BlobStore is a content-addressable byte store. Store returns a handle
// derived from the content, so storing the same bytes twice yields the same
// handle.
type BlobStore interface {
	Store(data []byte) (string, error)
	Read(handle string) ([]byte, error)
}

func handleFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryStore keeps blobs in memory. Suitable for tests and single-node
// development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Store saves the bytes and returns their content handle.
func (s *MemoryStore) Store(data []byte) (string, error) {
	h := handleFor(data)
	s.mu.Lock()
	if _, ok := s.blobs[h]; !ok {
		s.blobs[h] = append([]byte(nil), data...)
		metrics.DefaultMetrics.RecordAudioStored(len(data))
	}
	s.mu.Unlock()
	return h, nil
}

// Read returns a copy of the stored bytes.
func (s *MemoryStore) Read(handle string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// DiskStore keeps blobs as files under a base directory, named by handle.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the base directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir}, nil
}

// Store writes the bytes to a file named by their content handle. Writes
// go through a temp file and rename so readers never see partial content.
func (s *DiskStore) Store(data []byte) (string, error) {
	h := handleFor(data)
	path := filepath.Join(s.dir, h)

	if _, err := os.Stat(path); err == nil {
		return h, nil
	}

	tmp, err := os.CreateTemp(s.dir, "blob-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	metrics.DefaultMetrics.RecordAudioStored(len(data))
	return h, nil
}

// Read returns the stored bytes for a handle.
func (s *DiskStore) Read(handle string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(handle)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
