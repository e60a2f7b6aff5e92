package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStore persists each key as <data-dir>/<key>.json.
type FilesystemStore struct {
	dataDir string
}

// NewFilesystemStore creates the data directory if needed and returns a store rooted there.
func NewFilesystemStore(dataDir string) (*FilesystemStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}

	return &FilesystemStore{dataDir: dataDir}, nil
}

func (fs *FilesystemStore) path(key string) string {
	return filepath.Join(fs.dataDir, key+".json")
}

// Get reads the file for key. A missing file is reported as nil, nil.
func (fs *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes value to a temporary file and renames it over the old one, so
// readers never observe a partial document.
func (fs *FilesystemStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(fs.dataDir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, fs.path(key)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

func (fs *FilesystemStore) Close() error {
	return nil
}

// ensureDir creates dir with owner-only permissions if it does not exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
