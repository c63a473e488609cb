package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on every API request.
	APIToken string `toml:"api_token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Pipeline contains configuration for the content processing pipeline.
type Pipeline struct {
	PollIntervalSeconds       int  `toml:"poll_interval_seconds"`
	ErrorRetryIntervalSeconds int  `toml:"error_retry_interval_seconds"`
	MaxConcurrent             int  `toml:"max_concurrent"`
	FlashcardCount            int  `toml:"flashcard_count"`
	QuizQuestionCount         int  `toml:"quiz_question_count"`
	QuizAttemptsPerDifficulty int  `toml:"quiz_attempts_per_difficulty"`
	QuizRetryBaseDelaySeconds int  `toml:"quiz_retry_base_delay_seconds"`
	ReducedScopeRetries       int  `toml:"reduced_scope_retries"`
	ChunkSize                 int  `toml:"chunk_size"`
	ChunkOverlap              int  `toml:"chunk_overlap"`
	AutoResumePaused          bool `toml:"auto_resume_paused"`
}

// Generator describes one generator backend reachable by the resilience layer.
type Generator struct {
	ID                string `toml:"id"`
	Backend           string `toml:"backend"`
	Model             string `toml:"model"`
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Routing maps request classes onto generator ids.
type Routing struct {
	Streaming   string `toml:"streaming"`
	Lightweight string `toml:"lightweight"`
	Default     string `toml:"default"`
}

// Generation contains the retry and routing policy of the resilience layer.
type Generation struct {
	MaxAttemptsPerGenerator   int         `toml:"max_attempts_per_generator"`
	RetryBaseDelayMillis      int         `toml:"retry_base_delay_ms"`
	RetryMaxDelayMillis       int         `toml:"retry_max_delay_ms"`
	MinuteQuotaBackoffSeconds int         `toml:"minute_quota_backoff_seconds"`
	FallbackOrder             []string    `toml:"fallback_order"`
	Routing                   Routing     `toml:"routing"`
	Generators                []Generator `toml:"generators"`
}

// Embedding contains the embedding model used for vectorization and Q&A.
type Embedding struct {
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// VectorStore contains the Weaviate connection settings.
type VectorStore struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	ClassName      string `toml:"class_name"`
	DeleteAttempts int    `toml:"delete_attempts"`
	QueryLimit     int    `toml:"query_limit"`
}

// BlobStore selects where source documents are retained.
type BlobStore struct {
	Backend         string `toml:"backend"`
	Bucket          string `toml:"bucket"`
	CredentialsFile string `toml:"credentials_file"`
	LocalDir        string `toml:"local_dir"`
}

// Deletion contains the recovery window and the sweep/reconcile schedule.
type Deletion struct {
	RecoveryWindowDays       int  `toml:"recovery_window_days"`
	SweepIntervalMinutes     int  `toml:"sweep_interval_minutes"`
	BulkConcurrency          int  `toml:"bulk_concurrency"`
	ReconcileIntervalMinutes int  `toml:"reconcile_interval_minutes"`
	StallThresholdMinutes    int  `toml:"stall_threshold_minutes"`
	ReconcileInconsistent    bool `toml:"reconcile_inconsistent"`
}

// Quizzes contains quiz version retention.
type Quizzes struct {
	VersionsRetained int `toml:"versions_retained"`
}

// Coalescing configures the optional distributed single-flight lock.
type Coalescing struct {
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	LockTTLSeconds int    `toml:"lock_ttl_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Progress       bool   `toml:"progress"`
	BufferSize     int    `toml:"buffer_size"`
}

// Config encapsulates all configuration values for studyforge.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and the ops API bind address
//   - Logging: log format and level
//   - Pipeline: polling, concurrency, and per-stage generation sizes
//   - Generation: generator backends, routing table, retry policy
//   - Embedding: embedding model for vectorization and Q&A
//   - VectorStore: Weaviate connection
//   - BlobStore: source document retention (local or GCS)
//   - Deletion: soft-delete recovery window, sweep and reconciliation
//   - Quizzes: superseded version retention
//   - Coalescing: optional Redis lock for multi-process single-flight
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Generation    Generation    `toml:"generation"`
	Embedding     Embedding     `toml:"embedding"`
	VectorStore   VectorStore   `toml:"vector_store"`
	BlobStore     BlobStore     `toml:"blob_store"`
	Deletion      Deletion      `toml:"deletion"`
	Quizzes       Quizzes       `toml:"quizzes"`
	Coalescing    Coalescing    `toml:"coalescing"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// decode overlays the file onto cfg. A generator list in the file replaces the
// defaults wholesale instead of merging element by element.
func decode(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	var explicit struct {
		Generation struct {
			FallbackOrder []string    `toml:"fallback_order"`
			Generators    []Generator `toml:"generators"`
		} `toml:"generation"`
	}
	if err := toml.Unmarshal(data, &explicit); err != nil {
		return err
	}
	if explicit.Generation.Generators != nil {
		cfg.Generation.Generators = explicit.Generation.Generators
	}
	if explicit.Generation.FallbackOrder != nil {
		cfg.Generation.FallbackOrder = explicit.Generation.FallbackOrder
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("studyforge.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.BlobStore.Backend == BlobBackendLocal {
		dirs = append(dirs, c.BlobStore.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the SQLite primary store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "studyforge.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "studyforged.lock")
}

// RecoveryWindow is how long a soft-deleted item stays restorable.
func (c *Config) RecoveryWindow() time.Duration {
	return time.Duration(c.Deletion.RecoveryWindowDays) * 24 * time.Hour
}

// StallThreshold is the age after which an in-progress deletion saga counts as stalled.
func (c *Config) StallThreshold() time.Duration {
	return time.Duration(c.Deletion.StallThresholdMinutes) * time.Minute
}

// GeneratorByID returns the generator definition with the given id.
func (c *Config) GeneratorByID(id string) (Generator, bool) {
	for _, gen := range c.Generation.Generators {
		if gen.ID == id {
			return gen, true
		}
	}
	return Generator{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
