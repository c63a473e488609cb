package services_test

import (
	"context"
	"testing"

	"studyforge/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithContentID(ctx, "c-42")
	ctx = services.WithStage(ctx, "summarization")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ContentIDFromContext(ctx); !ok || id != "c-42" {
		t.Fatalf("unexpected content id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "summarization" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithContentID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.ContentIDFromContext(ctx); ok {
		t.Fatal("expected no content id value")
	}
}
