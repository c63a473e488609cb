package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"studyforge/internal/blobstore"
	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/stage"
	"studyforge/internal/transcript"
)

const stageName = content.StageTranscription

// maxSourceBytes bounds how much of a source file is read.
const maxSourceBytes = 32 << 20

// Transcriber persists transcripts for content items.
type Transcriber struct {
	store  *content.Store
	blobs  blobstore.Store
	logger *slog.Logger
}

// NewTranscriber builds the stage handler. blobs may be nil.
func NewTranscriber(store *content.Store, blobs blobstore.Store, logger *slog.Logger) *Transcriber {
	return &Transcriber{store: store, blobs: blobs, logger: logging.NewComponentLogger(logger, "transcription")}
}

func (t *Transcriber) Name() content.StageName { return stageName }

// Prepare requires a source to read.
func (t *Transcriber) Prepare(_ context.Context, item *content.Content) error {
	if strings.TrimSpace(item.BlobKey) == "" && strings.TrimSpace(item.SourcePath) == "" {
		return services.Wrap(services.ErrValidation, string(stageName), "prepare",
			"content has neither a blob key nor a source path", nil)
	}
	return nil
}

// Execute parses and stores the transcript.
func (t *Transcriber) Execute(ctx context.Context, item *content.Content, progress stage.Progress) error {
	logger := logging.WithContext(ctx, t.logger)
	stage.Report(progress, 5, "loading source")

	data, name, err := t.loadSource(ctx, item)
	if err != nil {
		return err
	}
	stage.Report(progress, 40, "parsing transcript")

	parsed, err := transcript.Parse(name, data)
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stageName), "parse transcript", name, err)
	}
	if strings.TrimSpace(parsed.FullText) == "" {
		return services.Wrap(services.ErrValidation, string(stageName), "parse transcript",
			fmt.Sprintf("%s contains no text", name), nil)
	}
	stage.Report(progress, 80, fmt.Sprintf("storing %d segments", len(parsed.Segments)))

	if err := t.store.SaveTranscript(ctx, &content.Transcript{
		ContentID: item.ID,
		FullText:  parsed.FullText,
		Segments:  parsed.Segments,
	}); err != nil {
		return services.Wrap(services.ErrTransient, string(stageName), "save transcript", "", err)
	}
	logger.Info("transcript stored",
		logging.String("format", string(parsed.Format)),
		logging.Int("segments", len(parsed.Segments)),
		logging.Int("characters", len(parsed.FullText)),
	)
	stage.Report(progress, 100, "transcript ready")
	return nil
}

func (t *Transcriber) loadSource(ctx context.Context, item *content.Content) ([]byte, string, error) {
	name := filepath.Base(item.SourcePath)
	if key := strings.TrimSpace(item.BlobKey); key != "" && t.blobs != nil {
		if name == "." || name == "" {
			name = filepath.Base(key)
		}
		reader, err := t.blobs.Download(ctx, key)
		if err == nil {
			defer reader.Close()
			data, readErr := io.ReadAll(io.LimitReader(reader, maxSourceBytes))
			if readErr != nil {
				return nil, "", services.Wrap(services.ErrTransient, string(stageName), "read blob", key, readErr)
			}
			return data, name, nil
		}
		if !errors.Is(err, services.ErrNotFound) || strings.TrimSpace(item.SourcePath) == "" {
			return nil, "", services.Wrap(services.ErrExternalTool, string(stageName), "download blob", key, err)
		}
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "source blob missing; reading local source", "source_blob_missing",
			logging.String("blob_key", key),
			logging.String(logging.FieldErrorHint, "re-add the content to restore document retention"),
		)
	}
	f, err := os.Open(item.SourcePath)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, string(stageName), "open source", item.SourcePath, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxSourceBytes))
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, string(stageName), "read source", item.SourcePath, err)
	}
	return data, name, nil
}

// HealthCheck reports readiness.
func (t *Transcriber) HealthCheck(context.Context) stage.Health {
	if t.store == nil {
		return stage.Unhealthy(string(stageName), "content store unavailable")
	}
	return stage.Healthy(string(stageName))
}

// Retain uploads a source file to the blob store and returns its key. It is
// used by the ingestion boundary before the pipeline starts.
func Retain(ctx context.Context, blobs blobstore.Store, contentID, sourcePath string) (string, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	key := blobstore.ObjectKey(contentID, sourcePath)
	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	if err := blobs.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", err
	}
	return key, nil
}

var _ stage.Handler = (*Transcriber)(nil)
