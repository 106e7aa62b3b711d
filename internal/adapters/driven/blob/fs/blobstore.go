// Package fs provides a local filesystem blob store, used for
// single-node deployments and development. Handles are generated file
// names under one root directory; an S3-compatible store can replace
// it behind the same interface.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.BlobStore = (*Store)(nil)

// Store keeps raw uploads as files under a root directory.
type Store struct {
	root string
}

// NewStore creates a blob store rooted at the given directory.
// If root is empty, defaults to ~/.inkwell/blobs.
func NewStore(root string) (*Store, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		root = filepath.Join(home, ".inkwell", "blobs")
	}

	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores the bytes under a generated handle. The hint's extension
// is kept so stored files stay recognisable on disk.
func (s *Store) Put(_ context.Context, data []byte, hint string) (string, error) {
	handle := uuid.New().String() + sanitizeExt(hint)
	if err := os.WriteFile(filepath.Join(s.root, handle), data, 0600); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	return handle, nil
}

// Get retrieves the bytes for a handle.
func (s *Store) Get(_ context.Context, handle string) ([]byte, error) {
	path, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}

// Delete removes the stored bytes. Deleting a missing handle is not
// an error.
func (s *Store) Delete(_ context.Context, handle string) error {
	path, err := s.resolve(handle)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing blob: %w", err)
	}
	return nil
}

// URL returns a file URL for the handle. A local store cannot presign,
// so the TTL is ignored; deployments that need expiring links front
// this with an object store.
func (s *Store) URL(_ context.Context, handle string, _ time.Duration) (string, error) {
	path, err := s.resolve(handle)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("checking blob: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving blob path: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// resolve maps a handle to its path, rejecting anything that would
// escape the root.
func (s *Store) resolve(handle string) (string, error) {
	if handle == "" || handle != filepath.Base(handle) {
		return "", fmt.Errorf("invalid blob handle %q: %w", handle, domain.ErrInvalidInput)
	}
	return filepath.Join(s.root, handle), nil
}

// sanitizeExt extracts a safe lowercase extension from a filename hint.
func sanitizeExt(hint string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(hint)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
