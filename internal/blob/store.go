package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"depot/internal/digest"
)

// Sentinel errors for blob lookups.
var (
	// ErrNotFound is returned when no blob exists for a digest.
	ErrNotFound = errors.New("blob not found")

	// ErrCorrupt is returned when stored bytes no longer hash to
	// their key. It indicates an underlying storage fault and is
	// always surfaced, never silently served.
	ErrCorrupt = errors.New("blob corrupt")
)

// Store is content-addressed storage for package archives.
type Store interface {
	// Put writes b under its content digest. Writing identical
	// bytes twice is a no-op success.
	Put(ctx context.Context, b []byte) (digest.Digest, error)

	// Get returns the stored bytes, verifying them against the
	// digest before returning.
	Get(ctx context.Context, d digest.Digest) ([]byte, error)

	// Has reports whether a blob exists for the digest.
	Has(ctx context.Context, d digest.Digest) (bool, error)
}

// FilesystemStore stores blobs under root/<hex[0:2]>/<hex>. Writes
// go through a temp file and rename, so a blob is either fully
// present or absent. Concurrent Puts of identical bytes do not
// conflict: both rename onto the same content-addressed path.
type FilesystemStore struct {
	root string
}

// Ensure FilesystemStore implements Store.
var _ Store = (*FilesystemStore)(nil)

// NewFilesystemStore creates a store rooted at dir, creating the
// directory if needed.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob store root: %w", err)
	}
	return &FilesystemStore{root: dir}, nil
}

// Root returns the store's root directory.
func (s *FilesystemStore) Root() string {
	return s.root
}

// blobPath returns the on-disk path for a digest, sharded by the
// first hex byte to keep directories small.
func (s *FilesystemStore) blobPath(d digest.Digest) string {
	hex := d.String()
	return filepath.Join(s.root, hex[:2], hex)
}

// Put writes b under its content digest.
func (s *FilesystemStore) Put(ctx context.Context, b []byte) (digest.Digest, error) {
	d := digest.Sum(b)

	if err := ctx.Err(); err != nil {
		return digest.Digest{}, err
	}

	path := s.blobPath(d)
	if _, err := os.Stat(path); err == nil {
		// Already stored. Content addressing makes this a success.
		return d, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return digest.Digest{}, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, "put-*")
	if err != nil {
		return digest.Digest{}, fmt.Errorf("failed to create temp blob: %w", err)
	}

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		return digest.Digest{}, fmt.Errorf("failed to write blob %s: %w", d, err)
	}
	if err := tmp.Sync(); err != nil {
		return digest.Digest{}, fmt.Errorf("failed to sync blob %s: %w", d, err)
	}
	if err := tmp.Close(); err != nil {
		return digest.Digest{}, fmt.Errorf("failed to close blob %s: %w", d, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return digest.Digest{}, fmt.Errorf("failed to commit blob %s: %w", d, err)
	}
	success = true

	return d, nil
}

// Get returns the stored bytes for d, re-verifying the digest so a
// storage fault is detected rather than served.
func (s *FilesystemStore) Get(ctx context.Context, d digest.Digest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(s.blobPath(d))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", d, err)
	}

	if got := digest.Sum(b); got != d {
		return nil, fmt.Errorf("%w: %s stored bytes hash to %s", ErrCorrupt, d, got)
	}

	return b, nil
}

// Has reports whether a blob exists for d.
func (s *FilesystemStore) Has(ctx context.Context, d digest.Digest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.blobPath(d))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
