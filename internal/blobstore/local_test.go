package blobstore_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"studyforge/internal/blobstore"
	"studyforge/internal/config"
	"studyforge/internal/services"
)

func TestLocalRoundTripAndTags(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	key := blobstore.ObjectKey("abc", "lecture.srt")
	if key != "content/abc/lecture.srt" {
		t.Fatalf("unexpected key %q", key)
	}
	if err := store.Upload(ctx, key, strings.NewReader("hello"), "text/plain"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rc, err := store.Download(ctx, key)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}

	if err := store.Tag(ctx, key, map[string]string{blobstore.TagDeleted: "true", blobstore.TagDeletedAt: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("Tag: %v", err)
	}
	tags, err := store.Tags(ctx, key)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if tags[blobstore.TagDeleted] != "true" || len(tags) != 2 {
		t.Fatalf("unexpected tags %v", tags)
	}
	if err := store.Untag(ctx, key, blobstore.TagDeleted, blobstore.TagDeletedAt); err != nil {
		t.Fatalf("Untag: %v", err)
	}
	tags, err = store.Tags(ctx, key)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected tags cleared, got %v", tags)
	}
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := store.Upload(ctx, "a/b.txt", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "a/b.txt"); err != nil {
			t.Fatalf("Delete #%d: %v", i, err)
		}
	}
	if _, err := store.Download(ctx, "a/b.txt"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Tag(ctx, "a/b.txt", map[string]string{"k": "v"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found tagging a missing object, got %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	store, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	for _, key := range []string{"", "../etc/passwd", "a/../../b"} {
		err := store.Upload(context.Background(), key, strings.NewReader("x"), "")
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("key %q: expected validation error, got %v", key, err)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := blobstore.New(context.Background(), config.BlobStore{Backend: config.BlobBackendLocal, LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := store.(*blobstore.Local); !ok {
		t.Fatalf("expected local store, got %T", store)
	}
	if _, err := blobstore.New(context.Background(), config.BlobStore{Backend: "s3"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
