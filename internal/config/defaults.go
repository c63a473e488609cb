package config

const (
	defaultConfigPath = "~/.config/studyforge/config.toml"
	defaultDataDir    = "~/.local/share/studyforge"
	defaultLogDir     = "~/.local/share/studyforge/logs"
	defaultBlobDir    = "~/.local/share/studyforge/blobs"
	defaultAPIBind    = "127.0.0.1:7490"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"

	defaultPollIntervalSeconds       = 5
	defaultErrorRetryIntervalSeconds = 10
	defaultMaxConcurrent             = 4
	defaultFlashcardCount            = 20
	defaultQuizQuestionCount         = 10
	defaultQuizAttemptsPerDifficulty = 3
	defaultQuizRetryBaseDelaySeconds = 2
	defaultReducedScopeRetries       = 2
	defaultChunkSize                 = 1000
	defaultChunkOverlap              = 200

	defaultMaxAttemptsPerGenerator   = 3
	defaultRetryBaseDelayMillis      = 1000
	defaultRetryMaxDelayMillis       = 10000
	defaultMinuteQuotaBackoffSeconds = 60
	defaultGeneratorTimeoutSeconds   = 60
	defaultOpenRouterBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterReferer         = "https://github.com/studyforge/studyforge"
	defaultOpenRouterTitle           = "studyforge"

	defaultEmbeddingModel = "text-embedding-3-small"

	defaultVectorClassName      = "StudyChunk"
	defaultVectorDeleteAttempts = 3
	defaultVectorQueryLimit     = 5

	defaultRecoveryWindowDays       = 30
	defaultSweepIntervalMinutes     = 60
	defaultBulkConcurrency          = 4
	defaultReconcileIntervalMinutes = 15
	defaultStallThresholdMinutes    = 15

	defaultQuizVersionsRetained = 3
	defaultLockTTLSeconds       = 120

	defaultNtfyRequestTimeout = 10
	defaultNotifyBufferSize   = 64
)

// Generator backend identifiers.
const (
	BackendOpenAI     = "openai"
	BackendOpenRouter = "openrouter"
)

// Blob store backend identifiers.
const (
	BlobBackendLocal = "local"
	BlobBackendGCS   = "gcs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Pipeline: Pipeline{
			PollIntervalSeconds:       defaultPollIntervalSeconds,
			ErrorRetryIntervalSeconds: defaultErrorRetryIntervalSeconds,
			MaxConcurrent:             defaultMaxConcurrent,
			FlashcardCount:            defaultFlashcardCount,
			QuizQuestionCount:         defaultQuizQuestionCount,
			QuizAttemptsPerDifficulty: defaultQuizAttemptsPerDifficulty,
			QuizRetryBaseDelaySeconds: defaultQuizRetryBaseDelaySeconds,
			ReducedScopeRetries:       defaultReducedScopeRetries,
			ChunkSize:                 defaultChunkSize,
			ChunkOverlap:              defaultChunkOverlap,
			AutoResumePaused:          true,
		},
		Generation: Generation{
			MaxAttemptsPerGenerator:   defaultMaxAttemptsPerGenerator,
			RetryBaseDelayMillis:      defaultRetryBaseDelayMillis,
			RetryMaxDelayMillis:       defaultRetryMaxDelayMillis,
			MinuteQuotaBackoffSeconds: defaultMinuteQuotaBackoffSeconds,
			FallbackOrder:             []string{"balanced", "lightweight", "realtime"},
			Routing: Routing{
				Streaming:   "realtime",
				Lightweight: "lightweight",
				Default:     "balanced",
			},
			Generators: []Generator{
				{
					ID:             "balanced",
					Backend:        BackendOpenRouter,
					Model:          "google/gemini-2.5-flash",
					BaseURL:        defaultOpenRouterBaseURL,
					Referer:        defaultOpenRouterReferer,
					Title:          defaultOpenRouterTitle,
					TimeoutSeconds: defaultGeneratorTimeoutSeconds,
				},
				{
					ID:             "lightweight",
					Backend:        BackendOpenRouter,
					Model:          "google/gemini-2.5-flash-lite",
					BaseURL:        defaultOpenRouterBaseURL,
					Referer:        defaultOpenRouterReferer,
					Title:          defaultOpenRouterTitle,
					TimeoutSeconds: defaultGeneratorTimeoutSeconds,
				},
				{
					ID:             "realtime",
					Backend:        BackendOpenAI,
					Model:          "gpt-4o-mini",
					TimeoutSeconds: defaultGeneratorTimeoutSeconds,
				},
			},
		},
		Embedding: Embedding{
			Model: defaultEmbeddingModel,
		},
		VectorStore: VectorStore{
			ClassName:      defaultVectorClassName,
			DeleteAttempts: defaultVectorDeleteAttempts,
			QueryLimit:     defaultVectorQueryLimit,
		},
		BlobStore: BlobStore{
			Backend:  BlobBackendLocal,
			LocalDir: defaultBlobDir,
		},
		Deletion: Deletion{
			RecoveryWindowDays:       defaultRecoveryWindowDays,
			SweepIntervalMinutes:     defaultSweepIntervalMinutes,
			BulkConcurrency:          defaultBulkConcurrency,
			ReconcileIntervalMinutes: defaultReconcileIntervalMinutes,
			StallThresholdMinutes:    defaultStallThresholdMinutes,
		},
		Quizzes: Quizzes{
			VersionsRetained: defaultQuizVersionsRetained,
		},
		Coalescing: Coalescing{
			LockTTLSeconds: defaultLockTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Progress:       true,
			BufferSize:     defaultNotifyBufferSize,
		},
	}
}
