package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"studyforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "vectorization", "upsert", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"vectorization", "upsert", "failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestDetailsExtractsFields(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("outer: %w", services.Wrap(services.ErrConsistency, "deletion", "cascade", "primary delete failed", cause))
	details := services.Details(err)
	if details.Kind != services.ErrorKindConsistency {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Operation != "cascade" {
		t.Fatalf("unexpected operation %q", details.Operation)
	}
	if details.Message != "primary delete failed" {
		t.Fatalf("unexpected message %q", details.Message)
	}
	if !errors.Is(details.Cause, cause) {
		t.Fatalf("unexpected cause %v", details.Cause)
	}
	if details.Hint == "" {
		t.Fatal("expected hint")
	}
}

type kindedError struct{}

func (kindedError) Error() string                { return "kinded" }
func (kindedError) ErrorKind() services.ErrorKind { return services.ErrorKindQuotaExceeded }

func TestKindOfPrefersClassifier(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", kindedError{})
	if kind := services.KindOf(err); kind != services.ErrorKindQuotaExceeded {
		t.Fatalf("expected classifier kind, got %q", kind)
	}
	if kind := services.KindOf(errors.New("plain")); kind != services.ErrorKindUnknown {
		t.Fatalf("expected unknown kind, got %q", kind)
	}
}
