package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/services"
)

// ErrNotRunning reports that background processing has not been started.
var ErrNotRunning = errors.New("workflow not running")

// Start reclaims interrupted items and begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	reclaimed, err := m.store.ReclaimInterrupted(runCtx)
	if err != nil {
		logging.WarnWithContext(m.logger, "reclaim of interrupted items failed", "reclaim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check content database access"),
			logging.String(logging.FieldImpact, "items interrupted by a crash stay in processing"),
		)
	}
	if len(reclaimed) > 0 {
		m.logger.Info("reclaimed interrupted items",
			logging.EventType("reclaim_interrupted"),
			logging.Int("count", len(reclaimed)),
		)
	}
	for _, id := range reclaimed {
		m.schedule(runCtx, id)
	}

	go m.runLoop(runCtx)
	return nil
}

// Stop cancels background processing and waits for running items to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.runCtx = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// ProcessAsync schedules a full pipeline run on the background pool.
func (m *Manager) ProcessAsync(contentID string) error {
	return m.dispatch(contentID, func(ctx context.Context) error {
		return m.process(ctx, contentID)
	})
}

// ResumeAsync schedules Resume on the background pool.
func (m *Manager) ResumeAsync(contentID string, fromStage content.StageName) error {
	return m.dispatch(contentID, func(ctx context.Context) error {
		return m.resume(ctx, contentID, fromStage)
	})
}

func (m *Manager) dispatch(contentID string, fn func(context.Context) error) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	if _, busy := m.inFlight[contentID]; busy {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.inFlight[contentID] = struct{}{}
	runCtx := m.runCtx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.release(contentID)
		if !m.acquireSlot(runCtx) {
			return
		}
		defer m.releaseSlot()
		m.logOutcome(runCtx, contentID, fn(runCtx))
	}()
	return nil
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		if err := m.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to fetch runnable content",
				logging.Error(err),
				logging.EventType("content_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check content database access"),
			)
			if !m.wait(ctx, m.retryInterval) {
				return
			}
			continue
		}
		if !m.wait(ctx, m.pollInterval) {
			return
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) error {
	items, err := m.store.ListRunnable(ctx)
	if err != nil {
		return err
	}
	if m.cfg.Pipeline.AutoResumePaused {
		paused, err := m.store.ListResumable(ctx, m.now())
		if err != nil {
			return err
		}
		items = append(items, paused...)
	}
	for _, item := range items {
		m.schedule(ctx, item.ID)
	}
	return nil
}

// schedule resumes the item on the background pool unless it is already in
// flight. Pending items have no completed stages, so resuming them runs the
// whole pipeline.
func (m *Manager) schedule(ctx context.Context, contentID string) {
	if !m.claim(contentID) {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(contentID)
		if !m.acquireSlot(ctx) {
			return
		}
		defer m.releaseSlot()
		m.logOutcome(ctx, contentID, m.resume(ctx, contentID, ""))
	}()
}

func (m *Manager) logOutcome(ctx context.Context, contentID string, err error) {
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	logging.WithContext(services.WithContentID(ctx, contentID), m.logger).Debug("background run ended",
		logging.String("outcome", string(services.KindOf(err))),
		logging.Error(err),
	)
}

func (m *Manager) claim(contentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[contentID]; busy {
		return false
	}
	m.inFlight[contentID] = struct{}{}
	return true
}

func (m *Manager) release(contentID string) {
	m.mu.Lock()
	delete(m.inFlight, contentID)
	m.mu.Unlock()
}

// InFlight reports whether contentID is executing in this process.
func (m *Manager) InFlight(contentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, busy := m.inFlight[contentID]
	return busy
}

func (m *Manager) acquireSlot(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case m.slots <- struct{}{}:
		return true
	}
}

func (m *Manager) releaseSlot() {
	<-m.slots
}

func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ResumeStage parses a user supplied stage name for Resume. An empty value
// selects the first incomplete stage.
func ResumeStage(value string) (content.StageName, error) {
	if value == "" {
		return "", nil
	}
	name, err := content.ParseStageName(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrValidation, err)
	}
	return name, nil
}
