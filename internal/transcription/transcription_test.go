package transcription_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"studyforge/internal/blobstore"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/stage"
	"studyforge/internal/testsupport"
	"studyforge/internal/transcription"
)

func TestTranscriberReadsRetainedBlob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.NewLocal(cfg.BlobStore.LocalDir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()
	source := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(cfg), "in", "lecture.srt"), testsupport.SampleSRT)
	item := testsupport.NewContent(t, store, "alice", source)

	key, err := transcription.Retain(ctx, blobs, item.ID, source)
	if err != nil {
		t.Fatalf("Retain: %v", err)
	}
	item.BlobKey = key

	handler := transcription.NewTranscriber(store, blobs, logging.NewNop())
	if err := handler.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	var last int
	if err := handler.Execute(ctx, item, func(p int, _ string) { last = p }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
	got, err := store.GetTranscript(ctx, item.ID)
	if err != nil || got == nil {
		t.Fatalf("GetTranscript: %v %v", got, err)
	}
	if len(got.Segments) != 2 || got.Segments[1].StartSeconds != 4.5 {
		t.Fatalf("unexpected segments %+v", got.Segments)
	}
}

func TestTranscriberFallsBackToSourcePath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, _ := blobstore.NewLocal(cfg.BlobStore.LocalDir)
	source := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(cfg), "notes.txt"), "Enzymes lower activation energy.\n\nThey are proteins.")
	item := testsupport.NewContent(t, store, "alice", source)
	item.BlobKey = "content/" + item.ID + "/missing.txt"

	handler := transcription.NewTranscriber(store, blobs, logging.NewNop())
	if err := handler.Execute(context.Background(), item, stage.NopProgress); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, _ := store.GetTranscript(context.Background(), item.ID)
	if got == nil || len(got.Segments) != 2 {
		t.Fatalf("expected two paragraph segments, got %+v", got)
	}
}

func TestTranscriberRejectsEmptySource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(cfg), "empty.txt"), "   \n\n  ")
	item := testsupport.NewContent(t, store, "alice", source)

	handler := transcription.NewTranscriber(store, nil, logging.NewNop())
	err := handler.Execute(context.Background(), item, stage.NopProgress)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTranscriberPrepareRequiresSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "alice", "")
	handler := transcription.NewTranscriber(store, nil, logging.NewNop())
	if err := handler.Prepare(context.Background(), item); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
