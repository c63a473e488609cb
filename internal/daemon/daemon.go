package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"studyforge/internal/config"
	"studyforge/internal/content"
	"studyforge/internal/deletion"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
	"studyforge/internal/workflow"
)

// IngestFunc registers a source file as a new content item.
type IngestFunc func(ctx context.Context, path, owner, title string) (*content.Content, error)

// Deps are the services the daemon coordinates.
type Deps struct {
	Store    *content.Store
	Workflow *workflow.Manager
	Deletion *deletion.Service
	Notifier notifications.Service
	Ingest   IngestFunc
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Workflow == nil || deps.Deletion == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and deletion service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewNoop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the workflow manager, the ops
// API, and the deletion maintenance loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another studyforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.deps.Workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.deps.Workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		return err
	}
	d.cancel = cancel

	d.wg.Add(1)
	go d.maintenanceLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("studyforge daemon started",
		logging.EventType("daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.cfg.Paths.APIBind),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	d.deps.Workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("studyforge daemon stopped", logging.EventType("daemon_stop"))
}

// Close releases resources held by the daemon. The content store belongs to
// the caller and stays open.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.deps.Workflow.Status(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
}

// AddFile registers a source file and schedules it on the pipeline.
func (d *Daemon) AddFile(ctx context.Context, path, owner, title string) (*content.Content, error) {
	if d.deps.Ingest == nil {
		return nil, errors.New("ingest unavailable")
	}
	item, err := d.deps.Ingest(ctx, path, owner, title)
	if err != nil {
		return nil, err
	}
	if err := d.deps.Workflow.ProcessAsync(item.ID); err != nil && !errors.Is(err, workflow.ErrAlreadyRunning) {
		// The poll loop picks the pending item up later.
		d.logger.Debug("immediate scheduling skipped", logging.ContentID(item.ID), logging.Error(err))
	}
	return item, nil
}

// Resume schedules processing from the first incomplete stage, or fromStage.
func (d *Daemon) Resume(contentID, fromStage string) error {
	stageName, err := workflow.ResumeStage(strings.TrimSpace(fromStage))
	if err != nil {
		return err
	}
	return d.deps.Workflow.ResumeAsync(contentID, stageName)
}

// TestNotification publishes a test event through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.deps.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// SweepNow permanently deletes soft-deleted items past the recovery window.
func (d *Daemon) SweepNow(ctx context.Context) (deletion.BulkResult, error) {
	return d.deps.Deletion.Sweep(ctx, time.Now())
}

// ReconcileNow advances stalled deletion sagas.
func (d *Daemon) ReconcileNow(ctx context.Context) ([]deletion.Result, error) {
	return d.deps.Deletion.Reconcile(ctx, deletion.ReconcileOptions{
		IncludeInconsistent: d.cfg.Deletion.ReconcileInconsistent,
	})
}

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	defer d.wg.Done()
	sweep := time.NewTicker(time.Duration(d.cfg.Deletion.SweepIntervalMinutes) * time.Minute)
	defer sweep.Stop()
	reconcile := time.NewTicker(time.Duration(d.cfg.Deletion.ReconcileIntervalMinutes) * time.Minute)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			res, err := d.SweepNow(ctx)
			if err != nil {
				logging.WarnWithContext(d.logger, "recovery window sweep failed", "sweep_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check content database access"),
					logging.String(logging.FieldImpact, "expired soft deletes stay in storage until the next sweep"),
				)
				continue
			}
			if total := len(res.Succeeded) + len(res.Failed); total > 0 {
				d.logger.Info("recovery window sweep finished",
					logging.EventType("sweep_complete"),
					logging.Int("deleted", len(res.Succeeded)),
					logging.Int("failed", len(res.Failed)),
				)
			}
		case <-reconcile.C:
			results, err := d.ReconcileNow(ctx)
			if err != nil {
				logging.WarnWithContext(d.logger, "saga reconciliation failed", "reconcile_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check content database access"),
					logging.String(logging.FieldImpact, "stalled deletes stay half finished until the next pass"),
				)
				continue
			}
			if len(results) > 0 {
				d.logger.Info("saga reconciliation finished",
					logging.EventType("reconcile_complete"),
					logging.Int("sagas", len(results)),
				)
			}
		}
	}
}
