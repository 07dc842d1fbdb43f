package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteOptions carries per-save metadata down to a tier
type WriteOptions struct {
	// IdempotencyKey is fixed for one logical save and reused by every retry
	IdempotencyKey string
}

// Backend is one persistent tier of the tiered store
type Backend interface {
	Name() string
	// Read returns ErrNotFound or ErrEmpty when the tier has nothing usable
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte, opts WriteOptions) error
}

// FileBackend stores one JSON file per key under a root directory
type FileBackend struct {
	root string
}

// NewFileBackend creates the root directory if needed
func NewFileBackend(root string) (*FileBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", root, err)
	}
	return &FileBackend{root: root}, nil
}

// Name implements Backend
func (b *FileBackend) Name() string { return "file" }

// Root returns the directory holding the collection files
func (b *FileBackend) Root() string { return b.root }

// Read returns the file for key. Zero-length and whitespace-only files are
// reported as ErrEmpty.
func (b *FileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// Write replaces the file for key via a temp file and rename
func (b *FileBackend) Write(ctx context.Context, key string, data []byte, _ WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (b *FileBackend) path(key string) string {
	clean := filepath.Clean("/" + strings.TrimSuffix(key, ".json"))
	return filepath.Join(b.root, clean+".json")
}
