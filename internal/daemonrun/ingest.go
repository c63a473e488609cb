package daemonrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"studyforge/internal/blobstore"
	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/services"
)

var sourceExtensions = map[string]content.Type{
	".srt": content.TypeVideo,
	".vtt": content.TypeVideo,
	".txt": content.TypeDocument,
	".md":  content.TypeDocument,
}

// AddFile registers a transcript or text file as new study material. The
// file is retained in the blob store; when the upload fails the item keeps
// reading from the local path.
func (c *Components) AddFile(ctx context.Context, sourcePath, owner, title string) (*content.Content, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add file", "source path is required", nil)
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add file", "stat source file", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add file", fmt.Sprintf("%q is a directory", absPath), nil)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	kind, ok := sourceExtensions[ext]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add file", fmt.Sprintf("unsupported file extension %q", ext), nil)
	}
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
	}

	item, err := c.Store.Create(ctx, content.NewContent{
		Owner:      owner,
		Type:       kind,
		Title:      title,
		SourcePath: absPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}
	logger := logging.WithContext(services.WithContentID(ctx, item.ID), c.Logger)

	if c.Blobs != nil {
		key := blobstore.ObjectKey(item.ID, info.Name())
		if err := c.upload(ctx, key, absPath); err != nil {
			logging.WarnWithContext(logger, "source upload failed", "blob_upload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check blob_store settings"),
				logging.String(logging.FieldImpact, "transcription reads the local file instead"),
			)
		} else if err := c.Store.SetBlobKey(ctx, item.ID, key); err != nil {
			return nil, fmt.Errorf("record blob key: %w", err)
		} else {
			item.BlobKey = key
		}
	}
	logger.Info("content added",
		logging.EventType("content_added"),
		logging.String("source", absPath),
		logging.String("title", title),
	)
	return item, nil
}

func (c *Components) upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Blobs.Upload(ctx, key, f, "text/plain")
}
