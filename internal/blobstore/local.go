package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"studyforge/internal/services"
)

const tagSuffix = ".tags.json"

// Local stores objects as files below a root directory.
type Local struct {
	root string
	mu   sync.Mutex
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "open local", "local_dir must be set", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) objectPath(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

// Upload writes r to key atomically via a temp file.
func (l *Local) Upload(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("commit object %s: %w", key, err)
	}
	return nil
}

// Download opens the object for reading.
func (l *Local) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "blobstore", "download", key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the object and its tags.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := l.objectPath(key)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range []string{target, target + tagSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
	}
	return nil
}

// Tag merges tags into the object's sidecar.
func (l *Local) Tag(ctx context.Context, key string, tags map[string]string) error {
	return l.updateTags(ctx, key, func(current map[string]string) {
		for k, v := range tags {
			current[k] = v
		}
	})
}

// Untag removes the named tags.
func (l *Local) Untag(ctx context.Context, key string, names ...string) error {
	return l.updateTags(ctx, key, func(current map[string]string) {
		for _, name := range names {
			delete(current, name)
		}
	})
}

// Tags returns the object's tags.
func (l *Local) Tags(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "blobstore", "tags", key, err)
	}
	return readTags(target + tagSuffix)
}

func (l *Local) updateTags(ctx context.Context, key string, mutate func(map[string]string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := l.objectPath(key)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, "blobstore", "tag", key, err)
	}
	current, err := readTags(target + tagSuffix)
	if err != nil {
		return err
	}
	mutate(current)
	if len(current) == 0 {
		if err := os.Remove(target + tagSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear tags %s: %w", key, err)
		}
		return nil
	}
	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if err := os.WriteFile(target+tagSuffix, data, 0o644); err != nil {
		return fmt.Errorf("write tags %s: %w", key, err)
	}
	return nil
}

func readTags(path string) (map[string]string, error) {
	tags := make(map[string]string)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return tags, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("decode tags %s: %w", path, err)
	}
	return tags, nil
}

var _ Store = (*Local)(nil)
