// Package blob provides the filesystem-backed object storage used for
// exhibit bytes. Other backends plug in behind domain.ObjectStorage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-legal/custodia/internal/domain"
)

//nolint:gochecknoglobals // sentinel error
var ErrInvalidKey = errors.New("blob: invalid storage key")

// FSStore stores objects as files under a root directory. Writes are
// atomic: content lands in a temp file first and is renamed into place.
type FSStore struct {
	root string
}

// Compile-time interface check.
var _ domain.ObjectStorage = (*FSStore)(nil) //nolint:gochecknoglobals // compile-time check

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blob.NewFSStore: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, fmt.Errorf("blob.FSStore.Download: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob.FSStore.Download: %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("blob.FSStore.Download: %w", err)
	}

	return data, nil
}

func (s *FSStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return fmt.Errorf("blob.FSStore.Upload: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("blob.FSStore.Upload: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("blob.FSStore.Upload: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob.FSStore.Upload: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob.FSStore.Upload: close: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob.FSStore.Upload: rename: %w", err)
	}

	return nil
}

// resolve maps a key to a path under root, rejecting traversal attempts.
func (s *FSStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}

	return path, nil
}
