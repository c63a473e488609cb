package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"studyforge/internal/config"
	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
)

// Manager coordinates stage execution for content items.
type Manager struct {
	cfg           *config.Config
	store         *content.Store
	logger        *slog.Logger
	notifier      notifications.Service
	pollInterval  time.Duration
	retryInterval time.Duration
	now           func() time.Time

	stages []pipelineStage

	mu       sync.RWMutex
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	slots    chan struct{}
	inFlight map[string]struct{}
	lastErr  error
	lastItem *content.Content
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock overrides the time source used for stage timestamps and pause
// recovery checks.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPollInterval overrides the background poll interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager constructs a workflow manager. A nil notifier discards events.
func NewManager(cfg *config.Config, store *content.Store, logger *slog.Logger, notifier notifications.Service, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	concurrency := cfg.Pipeline.MaxConcurrent
	if concurrency <= 0 {
		concurrency = 1
	}
	m := &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		notifier:      notifier,
		pollInterval:  time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second,
		retryInterval: time.Duration(cfg.Pipeline.ErrorRetryIntervalSeconds) * time.Second,
		now:           func() time.Time { return time.Now().UTC() },
		slots:         make(chan struct{}, concurrency),
		inFlight:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 5 * time.Second
	}
	if m.retryInterval <= 0 {
		m.retryInterval = m.pollInterval
	}
	return m
}
