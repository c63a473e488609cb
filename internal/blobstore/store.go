package blobstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"studyforge/internal/config"
	"studyforge/internal/services"
)

// Tag names written by soft delete.
const (
	TagDeleted   = "studyforge-deleted"
	TagDeletedAt = "studyforge-deleted-at"
)

// Store is the blob store contract.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. A missing object is not an error.
	Delete(ctx context.Context, key string) error
	Tag(ctx context.Context, key string, tags map[string]string) error
	Untag(ctx context.Context, key string, names ...string) error
	Tags(ctx context.Context, key string) (map[string]string, error)
}

// New returns the configured backend.
func New(ctx context.Context, cfg config.BlobStore) (Store, error) {
	switch cfg.Backend {
	case config.BlobBackendGCS:
		return NewGCS(ctx, cfg.Bucket, cfg.CredentialsFile)
	case config.BlobBackendLocal, "":
		return NewLocal(cfg.LocalDir)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "select backend", fmt.Sprintf("unsupported backend %q", cfg.Backend), nil)
	}
}

// ObjectKey is the blob key for a content item's source file.
func ObjectKey(contentID, filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "source"
	}
	return path.Join("content", contentID, name)
}

func cleanKey(key string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "blobstore", "validate key", "key must not be empty", nil)
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", services.Wrap(services.ErrValidation, "blobstore", "validate key", fmt.Sprintf("key %q escapes the store", key), nil)
		}
	}
	return path.Clean(trimmed), nil
}
