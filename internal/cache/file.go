package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

// FileBackend stores each key as a JSON file inside a profile directory.
// Writes go to a temporary file first and are renamed into place, so a crash never
// leaves a half-written value behind.
type FileBackend struct {
	dir   string
	quota int
}

// NewFileBackend creates the directory if needed. quota <= 0 means unbounded per value.
func NewFileBackend(dir string, quota int) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileBackend{dir: dir, quota: quota}, nil
}

func (f *FileBackend) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(f.dir, safe+".json")
}

// Get reads the file for key.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("cache key", key)
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Set atomically replaces the file for key.
func (f *FileBackend) Set(_ context.Context, key string, value []byte) error {
	if f.quota > 0 && len(value) > f.quota {
		return fmt.Errorf("set %s (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}

	tmp, err := os.CreateTemp(f.dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete removes the file for key; a missing file is not an error.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}
