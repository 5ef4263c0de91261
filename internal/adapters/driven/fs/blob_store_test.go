package fs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

func TestBlobStore_PutGetDelete(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "queue/abc/0.pdf", []byte("pdf bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := store.Get(ctx, "queue/abc/0.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("expected stored bytes back, got %q", data)
	}

	if err := store.Delete(ctx, "queue/abc/0.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "queue/abc/0.pdf"); !errors.Is(err, domain.ErrBlobMissing) {
		t.Errorf("expected ErrBlobMissing after delete, got %v", err)
	}
}

func TestBlobStore_DeleteMissingKey(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := store.Delete(context.Background(), "never/stored.pdf"); err != nil {
		t.Errorf("expected deleting a missing key to succeed, got %v", err)
	}
}

func TestBlobStore_Overwrite(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	_ = store.Put(ctx, "k.pdf", []byte("one"))
	_ = store.Put(ctx, "k.pdf", []byte("two"))

	data, err := store.Get(ctx, "k.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("expected overwrite, got %q", data)
	}
}

func TestBlobStore_PresignedURLUnsupported(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	// Even a stored blob cannot be linked to; the filesystem has no URLs.
	_ = store.Put(ctx, "k.pdf", []byte("pdf"))
	if _, err := store.PresignedURL(ctx, "k.pdf", time.Minute); !errors.Is(err, domain.ErrPresignUnsupported) {
		t.Errorf("expected ErrPresignUnsupported, got %v", err)
	}
}

func TestBlobStore_RejectsTraversal(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "../escape.pdf", []byte("x")); err == nil {
		t.Error("expected traversal key to be rejected")
	}
	if _, err := store.Get(ctx, "/abs/path.pdf"); err == nil {
		t.Error("expected absolute key to be rejected")
	}
}
