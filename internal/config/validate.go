package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateVectorStore(); err != nil {
		return err
	}
	if err := c.validateBlobStore(); err != nil {
		return err
	}
	if err := c.validateDeletion(); err != nil {
		return err
	}
	if c.Quizzes.VersionsRetained < 0 {
		return errors.New("quizzes.versions_retained must be zero or positive")
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.PollIntervalSeconds <= 0 {
		return errors.New("pipeline.poll_interval_seconds must be positive")
	}
	if p.ErrorRetryIntervalSeconds <= 0 {
		return errors.New("pipeline.error_retry_interval_seconds must be positive")
	}
	if p.MaxConcurrent <= 0 {
		return errors.New("pipeline.max_concurrent must be positive")
	}
	if p.FlashcardCount <= 0 {
		return errors.New("pipeline.flashcard_count must be positive")
	}
	if p.QuizQuestionCount <= 0 {
		return errors.New("pipeline.quiz_question_count must be positive")
	}
	if p.QuizAttemptsPerDifficulty <= 0 {
		return errors.New("pipeline.quiz_attempts_per_difficulty must be positive")
	}
	if p.QuizRetryBaseDelaySeconds < 0 {
		return errors.New("pipeline.quiz_retry_base_delay_seconds must be zero or positive")
	}
	if p.ChunkSize <= 0 {
		return errors.New("pipeline.chunk_size must be positive")
	}
	if p.ChunkOverlap >= p.ChunkSize {
		return errors.New("pipeline.chunk_overlap must be smaller than pipeline.chunk_size")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	g := c.Generation
	if g.MaxAttemptsPerGenerator <= 0 {
		return errors.New("generation.max_attempts_per_generator must be positive")
	}
	if g.RetryBaseDelayMillis < 0 || g.RetryMaxDelayMillis < 0 {
		return errors.New("generation retry delays must be zero or positive")
	}
	if g.RetryMaxDelayMillis > 0 && g.RetryBaseDelayMillis > g.RetryMaxDelayMillis {
		return errors.New("generation.retry_base_delay_ms must not exceed generation.retry_max_delay_ms")
	}
	if len(g.Generators) == 0 {
		return errors.New("generation.generators must define at least one generator")
	}
	seen := make(map[string]struct{}, len(g.Generators))
	for i, gen := range g.Generators {
		if gen.ID == "" {
			return fmt.Errorf("generation.generators[%d].id must be set", i)
		}
		if _, dup := seen[gen.ID]; dup {
			return fmt.Errorf("generation.generators: duplicate id %q", gen.ID)
		}
		seen[gen.ID] = struct{}{}
		switch gen.Backend {
		case BackendOpenAI, BackendOpenRouter:
		default:
			return fmt.Errorf("generation.generators[%s].backend: unsupported value %q", gen.ID, gen.Backend)
		}
		if gen.Model == "" {
			return fmt.Errorf("generation.generators[%s].model must be set", gen.ID)
		}
		if gen.RequestsPerMinute < 0 {
			return fmt.Errorf("generation.generators[%s].requests_per_minute must be zero or positive", gen.ID)
		}
	}
	routes := map[string]string{
		"generation.routing.streaming":   g.Routing.Streaming,
		"generation.routing.lightweight": g.Routing.Lightweight,
		"generation.routing.default":     g.Routing.Default,
	}
	for key, id := range routes {
		if id == "" {
			return fmt.Errorf("%s must be set", key)
		}
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("%s references unknown generator %q", key, id)
		}
	}
	for _, id := range g.FallbackOrder {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("generation.fallback_order references unknown generator %q", id)
		}
	}
	return nil
}

func (c *Config) validateVectorStore() error {
	if strings.TrimSpace(c.VectorStore.ClassName) == "" {
		return errors.New("vector_store.class_name must be set")
	}
	if c.VectorStore.DeleteAttempts <= 0 {
		return errors.New("vector_store.delete_attempts must be positive")
	}
	if c.VectorStore.QueryLimit <= 0 {
		return errors.New("vector_store.query_limit must be positive")
	}
	return nil
}

func (c *Config) validateBlobStore() error {
	switch c.BlobStore.Backend {
	case BlobBackendLocal:
		if strings.TrimSpace(c.BlobStore.LocalDir) == "" {
			return errors.New("blob_store.local_dir must be set for the local backend")
		}
	case BlobBackendGCS:
		if strings.TrimSpace(c.BlobStore.Bucket) == "" {
			return errors.New("blob_store.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("blob_store.backend: unsupported value %q", c.BlobStore.Backend)
	}
	return nil
}

func (c *Config) validateDeletion() error {
	d := c.Deletion
	if d.RecoveryWindowDays <= 0 {
		return errors.New("deletion.recovery_window_days must be positive")
	}
	if d.SweepIntervalMinutes <= 0 || d.ReconcileIntervalMinutes <= 0 {
		return errors.New("deletion sweep and reconcile intervals must be positive")
	}
	if d.BulkConcurrency <= 0 {
		return errors.New("deletion.bulk_concurrency must be positive")
	}
	if d.StallThresholdMinutes <= 0 {
		return errors.New("deletion.stall_threshold_minutes must be positive")
	}
	return nil
}
