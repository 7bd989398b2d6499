// Package local keeps uploaded documents on disk for dev runs and tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"time"

	"intake-backend/internal/shared/storage/object"
)

// Store implements object.ObjectStore under a base directory.
type Store struct {
	baseDir string
}

// New creates a store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) path(key string) (string, error) {
	if err := object.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

// Put writes r to key through a temp file so readers never see a partial
// upload.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	full, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return 0, fmt.Errorf("commit %s: %w", key, err)
	}
	return written, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", object.ErrNotFound, key)
	}
	return f, err
}

// Stat reports the size of a stored object. The content type is guessed from
// the key's extension since the disk keeps no metadata.
func (s *Store) Stat(ctx context.Context, key string) (object.Info, error) {
	if err := ctx.Err(); err != nil {
		return object.Info{}, err
	}
	full, err := s.path(key)
	if err != nil {
		return object.Info{}, err
	}
	st, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return object.Info{}, fmt.Errorf("%w: %s", object.ErrNotFound, key)
	}
	if err != nil {
		return object.Info{}, err
	}
	return object.Info{Size: st.Size(), ContentType: mime.TypeByExtension(filepath.Ext(full))}, nil
}

// ReadURL returns "" because files on local disk have no signed URL.
func (s *Store) ReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", ctx.Err()
}

var _ object.ObjectStore = (*Store)(nil)
