package testsupport

import (
	"path/filepath"
	"testing"

	"studyforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are zeroed so resilience paths run instantly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.BlobStore.Backend = config.BlobBackendLocal
	cfgVal.BlobStore.LocalDir = filepath.Join(base, "blobs")
	cfgVal.Generation.RetryBaseDelayMillis = 0
	cfgVal.Generation.RetryMaxDelayMillis = 0
	cfgVal.Generation.MinuteQuotaBackoffSeconds = 0
	cfgVal.Pipeline.QuizRetryBaseDelaySeconds = 0
	for i := range cfgVal.Generation.Generators {
		cfgVal.Generation.Generators[i].APIKey = "test"
	}
	cfgVal.Embedding.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithFlashcardCount overrides the number of cards requested per item.
func WithFlashcardCount(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.FlashcardCount = n
	}
}

// WithQuizQuestionCount overrides the number of questions requested per quiz.
func WithQuizQuestionCount(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.QuizQuestionCount = n
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
