package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"studyforge/internal/blobstore"
	"studyforge/internal/config"
	"studyforge/internal/content"
	"studyforge/internal/deletion"
	"studyforge/internal/flashcards"
	"studyforge/internal/generation"
	"studyforge/internal/generation/openai"
	"studyforge/internal/generation/openrouter"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
	"studyforge/internal/qa"
	"studyforge/internal/quizzes"
	"studyforge/internal/scoring"
	"studyforge/internal/srs"
	"studyforge/internal/summarization"
	"studyforge/internal/transcription"
	"studyforge/internal/vectorization"
	"studyforge/internal/vectorstore"
	"studyforge/internal/workflow"
)

// Components is the fully wired application graph shared by the daemon and
// the in-process CLI commands.
type Components struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *content.Store
	Vectors   vectorstore.Store
	Blobs     blobstore.Store
	Invoker   *generation.Invoker
	Embedder  generation.Embedder
	Coalescer generation.Coalescer
	Notifier  notifications.Service
	Workflow  *workflow.Manager
	Quizzes   *quizzes.Service
	Reviews   *srs.Service
	Attempts  *scoring.AttemptService
	Deletion  *deletion.Service
	QA        *qa.Service

	closers []func() error
}

// Build opens every store and backend named by cfg and wires the services.
// The caller owns the result and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Components{Config: cfg, Logger: logger}

	store, err := content.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	c.Store = store
	c.closers = append(c.closers, store.Close)

	if c.Vectors, err = vectorstore.New(cfg.VectorStore, logger); err != nil {
		c.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if w, ok := c.Vectors.(*vectorstore.Weaviate); ok {
		if err := w.EnsureSchema(ctx); err != nil {
			logging.WarnWithContext(logger, "vector schema check failed", "vectorstore_schema",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "verify vector_store.url and api_key"),
				logging.String(logging.FieldImpact, "vectorization fails until the class exists"),
			)
		}
	}

	if c.Blobs, err = blobstore.New(ctx, cfg.BlobStore); err != nil {
		c.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	if closer, ok := c.Blobs.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}

	router := generation.NewRouter(cfg.Generation, buildGenerators(cfg.Generation)...)
	c.Invoker = generation.NewInvoker(cfg.Generation, router, logger)
	c.Embedder = openai.NewEmbedder(cfg.Embedding)
	c.Coalescer = c.buildCoalescer()

	dispatcher := notifications.NewDispatcher(notifications.NewService(cfg), cfg.Notifications.BufferSize,
		time.Duration(cfg.Notifications.RequestTimeout)*time.Second, logger)
	c.Notifier = dispatcher
	c.closers = append(c.closers, func() error { dispatcher.Close(); return nil })

	p := cfg.Pipeline
	c.Quizzes = quizzes.NewService(store, c.Invoker, c.Coalescer, quizzes.Options{
		QuestionCount:       p.QuizQuestionCount,
		ReducedScopeRetries: p.ReducedScopeRetries,
		VersionsRetained:    cfg.Quizzes.VersionsRetained,
	}, logger)

	c.Workflow = workflow.NewManager(cfg, store, logger, c.Notifier)
	c.Workflow.ConfigureStages(workflow.StageSet{
		Transcription: transcription.NewTranscriber(store, c.Blobs, logger),
		Vectorization: vectorization.NewVectorizer(store, c.Vectors, c.Embedder, p.ChunkSize, p.ChunkOverlap, logger),
		Summarization: summarization.NewSummarizer(store, c.Invoker, logger),
		Flashcards:    flashcards.NewGenerator(store, c.Invoker, p.FlashcardCount, p.ReducedScopeRetries, logger),
		Quizzes:       quizzes.NewStage(c.Quizzes, p.QuizAttemptsPerDifficulty, time.Duration(p.QuizRetryBaseDelaySeconds)*time.Second, logger),
	})

	c.Reviews = srs.NewService(store, logger)
	c.Attempts = scoring.NewAttemptService(store, logger)
	c.Deletion = deletion.NewService(store, c.Vectors, c.Blobs, c.Notifier, deletion.OptionsFromConfig(cfg), logger)
	c.QA = qa.NewService(store, c.Vectors, c.Embedder, c.Invoker, cfg.VectorStore.QueryLimit, logger)
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Components) buildCoalescer() generation.Coalescer {
	co := c.Config.Coalescing
	if co.RedisAddr == "" {
		return generation.NewLocalCoalescer()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     co.RedisAddr,
		Password: co.RedisPassword,
		DB:       co.RedisDB,
	})
	c.closers = append(c.closers, client.Close)
	c.Logger.Info("distributed coalescing enabled",
		logging.EventType("coalescer_redis"),
		logging.String("redis_addr", co.RedisAddr),
	)
	return generation.NewRedisCoalescer(client, time.Duration(co.LockTTLSeconds)*time.Second)
}

func buildGenerators(cfg config.Generation) []generation.Generator {
	gens := make([]generation.Generator, 0, len(cfg.Generators))
	for _, def := range cfg.Generators {
		switch def.Backend {
		case config.BackendOpenAI:
			gens = append(gens, openai.New(def))
		case config.BackendOpenRouter:
			gens = append(gens, openrouter.New(def))
		}
	}
	return gens
}
