package attachment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore is a Downloader backed by a directory of hash-named files.
// It stands in for the remote attachment service in local setups and
// tests; payloads are verified against their hash on read.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put stores a payload and returns its hash.
func (f *FileStore) Put(data []byte) (string, error) {
	hash := Hash(data)
	if err := os.WriteFile(f.path(hash), data, 0644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return hash, nil
}

// Download reads a payload by hash.
func (f *FileStore) Download(ctx context.Context, hash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(hash))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if got := Hash(data); got != hash {
		return nil, fmt.Errorf("attachment %s corrupt: content hashes to %s", hash, got)
	}
	return data, nil
}

// Exists reports whether the payload is present.
func (f *FileStore) Exists(hash string) (bool, error) {
	_, err := os.Stat(f.path(hash))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *FileStore) path(hash string) string {
	return filepath.Join(f.dir, hash)
}
