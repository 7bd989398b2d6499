package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/shared/util"
)

// ErrNotFound is returned when no object exists at a key.
var ErrNotFound = errors.New("object not found")

// ObjectStore holds the raw bytes of uploaded tax documents.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Info, error)
	// ReadURL returns a time-limited URL for the object, or "" when the backend cannot sign one.
	ReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Info describes a stored object.
type Info struct {
	Size        int64
	ContentType string
}

const uploadRoot = "uploads"

// MaxObjectBytes caps a single upload and every read back into memory.
const MaxObjectBytes = 25 << 20

// CasePrefix is the key prefix every upload for caseID lives under.
func CasePrefix(caseID string) string {
	return uploadRoot + "/" + util.HashKey(caseID) + "/"
}

// UploadKey returns a fresh key for a sanitized file name within a case.
func UploadKey(caseID, fileName string) string {
	return CasePrefix(caseID) + uuid.NewString() + "-" + fileName
}

// ValidateKey rejects empty, absolute and parent-relative keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty storage key")
	}
	clean := path.Clean(key)
	if strings.HasPrefix(key, "/") || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

// ReadAll loads at most limit bytes of the object into memory. A non-positive
// limit reads everything.
func ReadAll(ctx context.Context, store ObjectStore, key string, limit int64) ([]byte, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if limit <= 0 {
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("object %s exceeds %d bytes", key, limit)
	}
	return data, nil
}
