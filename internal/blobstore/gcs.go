package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"studyforge/internal/services"
)

// GCS stores objects in a Cloud Storage bucket. Tags are object metadata.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS opens a bucket handle. With an empty credentialsFile the application
// default credentials are used.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "blobstore", "open gcs",
				fmt.Sprintf("service account key not found at %s", credentialsFile), err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "blobstore", "open gcs", "create storage client", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) object(key string) (*storage.ObjectHandle, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	return g.client.Bucket(g.bucket).Object(cleaned), nil
}

// Upload streams r into the object.
func (g *GCS) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}
	writer := obj.NewWriter(ctx)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	writer.ContentType = contentType
	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return services.Wrap(services.ErrExternalTool, "blobstore", "upload", fmt.Sprintf("gs://%s/%s", g.bucket, key), err)
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrExternalTool, "blobstore", "upload", fmt.Sprintf("close writer for gs://%s/%s", g.bucket, key), err)
	}
	return nil
}

// Download opens a reader on the object.
func (g *GCS) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := g.object(key)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "blobstore", "download", key, err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "blobstore", "download", key, err)
	}
	return reader, nil
}

// Delete removes the object; a missing object succeeds.
func (g *GCS) Delete(ctx context.Context, key string) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return services.Wrap(services.ErrExternalTool, "blobstore", "delete", key, err)
	}
	return nil
}

// Tag sets metadata entries on the object.
func (g *GCS) Tag(ctx context.Context, key string, tags map[string]string) error {
	metadata := make(map[string]string, len(tags))
	for k, v := range tags {
		metadata[k] = v
	}
	return g.updateMetadata(ctx, key, metadata)
}

// Untag removes metadata entries. An empty value deletes a key on update.
func (g *GCS) Untag(ctx context.Context, key string, names ...string) error {
	metadata := make(map[string]string, len(names))
	for _, name := range names {
		metadata[name] = ""
	}
	return g.updateMetadata(ctx, key, metadata)
}

// Tags returns the object's metadata.
func (g *GCS) Tags(ctx context.Context, key string) (map[string]string, error) {
	obj, err := g.object(key)
	if err != nil {
		return nil, err
	}
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "blobstore", "tags", key, err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "blobstore", "tags", key, err)
	}
	out := make(map[string]string, len(attrs.Metadata))
	for k, v := range attrs.Metadata {
		out[k] = v
	}
	return out, nil
}

func (g *GCS) updateMetadata(ctx context.Context, key string, metadata map[string]string) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}
	_, err = obj.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: metadata})
	if errors.Is(err, storage.ErrObjectNotExist) {
		return services.Wrap(services.ErrNotFound, "blobstore", "update metadata", key, err)
	}
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "blobstore", "update metadata", key, err)
	}
	return nil
}

var _ Store = (*GCS)(nil)
