package testsupport

import (
	"context"
	"testing"

	"studyforge/internal/config"
	"studyforge/internal/content"
)

// MustOpenStore opens a content.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *content.Store {
	t.Helper()

	store, err := content.Open(cfg)
	if err != nil {
		t.Fatalf("content.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewContent creates a pending document item for tests.
func NewContent(t testing.TB, store *content.Store, owner, sourcePath string) *content.Content {
	t.Helper()

	item, err := store.Create(context.Background(), content.NewContent{
		Owner:      owner,
		Type:       content.TypeDocument,
		Title:      "Test material",
		SourcePath: sourcePath,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return item
}
