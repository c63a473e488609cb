package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizePipeline()
	c.normalizeGeneration()
	c.normalizeEmbedding()
	return c.normalizeBlobStore()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if value, ok := os.LookupEnv("STUDYFORGE_API_TOKEN"); ok {
		c.Paths.APIToken = strings.TrimSpace(value)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.ChunkOverlap < 0 {
		c.Pipeline.ChunkOverlap = 0
	}
	if c.Pipeline.ReducedScopeRetries < 0 {
		c.Pipeline.ReducedScopeRetries = 0
	}
}

func (c *Config) normalizeGeneration() {
	for i := range c.Generation.Generators {
		gen := &c.Generation.Generators[i]
		gen.ID = strings.TrimSpace(gen.ID)
		gen.Backend = strings.ToLower(strings.TrimSpace(gen.Backend))
		gen.Model = strings.TrimSpace(gen.Model)
		gen.BaseURL = strings.TrimSpace(gen.BaseURL)
		gen.APIKey = strings.TrimSpace(gen.APIKey)
		if key := envKeyForBackend(gen.Backend); key != "" {
			gen.APIKey = key
		}
		if gen.Backend == BackendOpenRouter && gen.BaseURL == "" {
			gen.BaseURL = defaultOpenRouterBaseURL
		}
		if gen.TimeoutSeconds <= 0 {
			gen.TimeoutSeconds = defaultGeneratorTimeoutSeconds
		}
	}
	order := make([]string, 0, len(c.Generation.FallbackOrder))
	for _, id := range c.Generation.FallbackOrder {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			order = append(order, trimmed)
		}
	}
	c.Generation.FallbackOrder = order
	c.Generation.Routing.Streaming = strings.TrimSpace(c.Generation.Routing.Streaming)
	c.Generation.Routing.Lightweight = strings.TrimSpace(c.Generation.Routing.Lightweight)
	c.Generation.Routing.Default = strings.TrimSpace(c.Generation.Routing.Default)
}

func (c *Config) normalizeEmbedding() {
	c.Embedding.Model = strings.TrimSpace(c.Embedding.Model)
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbeddingModel
	}
	c.Embedding.APIKey = strings.TrimSpace(c.Embedding.APIKey)
	if key := envKeyForBackend(BackendOpenAI); key != "" {
		c.Embedding.APIKey = key
	}
}

func (c *Config) normalizeBlobStore() error {
	c.BlobStore.Backend = strings.ToLower(strings.TrimSpace(c.BlobStore.Backend))
	if c.BlobStore.Backend == "" {
		c.BlobStore.Backend = BlobBackendLocal
	}
	if c.BlobStore.Backend != BlobBackendLocal {
		return nil
	}
	if strings.TrimSpace(c.BlobStore.LocalDir) == "" {
		c.BlobStore.LocalDir = defaultBlobDir
	}
	var err error
	if c.BlobStore.LocalDir, err = expandPath(c.BlobStore.LocalDir); err != nil {
		return fmt.Errorf("blob_store.local_dir: %w", err)
	}
	return nil
}

// envKeyForBackend returns the environment credential for a backend. Environment
// values take precedence over the config file.
func envKeyForBackend(backend string) string {
	var name string
	switch backend {
	case BackendOpenAI:
		name = "OPENAI_API_KEY"
	case BackendOpenRouter:
		name = "OPENROUTER_API_KEY"
	default:
		return ""
	}
	if value, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
