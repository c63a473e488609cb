package vectorization

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/stage"
	"studyforge/internal/vectorstore"
)

const (
	stageName        = content.StageVectorization
	defaultBatchSize = 32
)

var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// Vectorizer embeds transcripts.
type Vectorizer struct {
	store     *content.Store
	vectors   vectorstore.Store
	embedder  generation.Embedder
	splitter  textsplitter.TextSplitter
	batchSize int
	logger    *slog.Logger
}

// NewVectorizer builds the stage handler.
func NewVectorizer(store *content.Store, vectors vectorstore.Store, embedder generation.Embedder, chunkSize, chunkOverlap int, logger *slog.Logger) *Vectorizer {
	return &Vectorizer{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		),
		batchSize: defaultBatchSize,
		logger:    logging.NewComponentLogger(logger, "vectorization"),
	}
}

func (v *Vectorizer) Name() content.StageName { return stageName }

// Prepare requires a stored transcript.
func (v *Vectorizer) Prepare(ctx context.Context, item *content.Content) error {
	tr, err := v.store.GetTranscript(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, string(stageName), "load transcript", "", err)
	}
	if tr == nil {
		return stage.MissingArtifact(stageName, "transcript", content.StageTranscription)
	}
	return nil
}

// Execute chunks, embeds and upserts the transcript.
func (v *Vectorizer) Execute(ctx context.Context, item *content.Content, progress stage.Progress) error {
	logger := logging.WithContext(ctx, v.logger)
	tr, err := v.store.GetTranscript(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, string(stageName), "load transcript", "", err)
	}
	if tr == nil {
		return stage.MissingArtifact(stageName, "transcript", content.StageTranscription)
	}

	chunks, err := v.Chunk(tr.FullText)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return services.Wrap(services.ErrValidation, string(stageName), "split transcript", "transcript produced no chunks", nil)
	}
	stage.Report(progress, 5, fmt.Sprintf("embedding %d chunks", len(chunks)))

	if _, err := v.vectors.DeleteByMetadata(ctx, vectorstore.ContentFilter(item.ID)); err != nil {
		return services.Wrap(services.ErrExternalTool, string(stageName), "clear previous vectors", "", err)
	}

	for start := 0; start < len(chunks); start += v.batchSize {
		end := min(start+v.batchSize, len(chunks))
		batch := chunks[start:end]
		vectors, err := v.embedder.Embed(ctx, batch)
		if err != nil {
			return withKind(err, "embed chunks")
		}
		if len(vectors) != len(batch) {
			return services.Wrap(services.ErrExternalTool, string(stageName), "embed chunks",
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)), nil)
		}
		records := make([]vectorstore.Record, len(batch))
		for i, text := range batch {
			idx := start + i
			records[i] = vectorstore.Record{
				ID:         vectorstore.RecordID(item.ID, idx),
				ContentID:  item.ID,
				ChunkIndex: idx,
				Text:       text,
				Vector:     vectors[i],
			}
		}
		if err := v.vectors.Upsert(ctx, records); err != nil {
			return services.Wrap(services.ErrExternalTool, string(stageName), "upsert vectors", "", err)
		}
		stage.Report(progress, stage.Scaled(5, 100, end, len(chunks)), fmt.Sprintf("embedded %d/%d chunks", end, len(chunks)))
	}
	logger.Info("transcript vectorized", logging.Int("chunks", len(chunks)))
	return nil
}

// Chunk splits text into trimmed, non-empty chunks.
func (v *Vectorizer) Chunk(text string) ([]string, error) {
	raw, err := v.splitter.SplitText(text)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, string(stageName), "split transcript", "", err)
	}
	chunks := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks, nil
}

// withKind keeps an already classified error intact and tags raw ones.
func withKind(err error, op string) error {
	if services.KindOf(err) != services.ErrorKindUnknown {
		return err
	}
	return services.Wrap(services.ErrExternalTool, string(stageName), op, "", err)
}

// HealthCheck reports readiness.
func (v *Vectorizer) HealthCheck(context.Context) stage.Health {
	switch {
	case v.embedder == nil:
		return stage.Unhealthy(string(stageName), "embedder not configured")
	case v.vectors == nil:
		return stage.Unhealthy(string(stageName), "vector store not configured")
	}
	return stage.Healthy(string(stageName))
}

var _ stage.Handler = (*Vectorizer)(nil)
