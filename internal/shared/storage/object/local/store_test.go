package local

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"intake-backend/internal/shared/storage/object"
)

func TestPutOpenStat(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	key := object.UploadKey("case-1", "w2.pdf")

	n, err := store.Put(ctx, key, "application/pdf", strings.NewReader("%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != int64(len("%PDF-1.4 test")) {
		t.Fatalf("unexpected size %d", n)
	}

	data, err := object.ReadAll(ctx, store, key, 0)
	if err != nil || !bytes.Equal(data, []byte("%PDF-1.4 test")) {
		t.Fatalf("ReadAll = %q, %v", data, err)
	}
	info, err := store.Stat(ctx, key)
	if err != nil || info.Size != n || info.ContentType != "application/pdf" {
		t.Fatalf("Stat = %+v, %v", info, err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, filepath.FromSlash(object.CasePrefix("case-1")), ".upload-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestMissingObjects(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()
	if _, err := store.Open(ctx, "uploads/none/x.png"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Open missing: %v", err)
	}
	if _, err := store.Stat(ctx, "uploads/none/x.png"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Stat missing: %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "objects"))
	ctx := context.Background()
	for _, key := range []string{"../outside", "/etc/passwd", "uploads/../../x", `uploads\..\x`, ""} {
		if _, err := store.Open(ctx, key); err == nil {
			t.Fatalf("Open(%q): expected error", key)
		}
		if _, err := store.Put(ctx, key, "text/plain", strings.NewReader("x")); err == nil {
			t.Fatalf("Put(%q): expected error", key)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "outside")); err == nil {
		t.Fatalf("traversal wrote outside the base dir")
	}
}

func TestReadAllLimit(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()
	key := object.UploadKey("case-1", "big.png")
	if _, err := store.Put(ctx, key, "image/png", strings.NewReader(strings.Repeat("x", 64))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := object.ReadAll(ctx, store, key, 32); err == nil {
		t.Fatalf("expected limit error")
	}
	if data, err := object.ReadAll(ctx, store, key, 64); err != nil || len(data) != 64 {
		t.Fatalf("ReadAll at limit: %d bytes, %v", len(data), err)
	}
}

func TestReadURLIsEmpty(t *testing.T) {
	url, err := New(t.TempDir()).ReadURL(context.Background(), "any", time.Minute)
	if err != nil || url != "" {
		t.Fatalf("expected no URL from local store, got %q, %v", url, err)
	}
}
