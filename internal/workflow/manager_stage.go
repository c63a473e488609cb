package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/stage"
)

// ErrAlreadyRunning reports that the item is already executing in this process.
var ErrAlreadyRunning = fmt.Errorf("%w: content is already processing", services.ErrValidation)

// Process resets every stage to pending and runs the full pipeline.
func (m *Manager) Process(ctx context.Context, contentID string) error {
	if !m.claim(contentID) {
		return ErrAlreadyRunning
	}
	defer m.release(contentID)
	return m.process(ctx, contentID)
}

func (m *Manager) process(ctx context.Context, contentID string) error {
	item, err := m.load(ctx, contentID)
	if err != nil {
		return err
	}
	fresh := content.NewStages()
	for _, name := range content.StageOrder {
		fresh.Get(name).RetryCount = item.Stages.Get(name).RetryCount
	}
	item.Stages = fresh
	return m.run(ctx, item, content.StageTranscription)
}

// Resume continues processing from the first incomplete stage, or from
// fromStage when one is given. Completed stages before the start point are
// never re-executed. Resuming a fully completed item without fromStage is a
// no-op.
func (m *Manager) Resume(ctx context.Context, contentID string, fromStage content.StageName) error {
	if !m.claim(contentID) {
		return ErrAlreadyRunning
	}
	defer m.release(contentID)
	return m.resume(ctx, contentID, fromStage)
}

func (m *Manager) resume(ctx context.Context, contentID string, fromStage content.StageName) error {
	item, err := m.load(ctx, contentID)
	if err != nil {
		return err
	}
	start := fromStage
	if start == "" {
		first, incomplete := item.Stages.FirstIncomplete()
		if !incomplete {
			logging.WithContext(services.WithContentID(ctx, contentID), m.logger).Debug("resume skipped; all stages completed")
			return nil
		}
		start = first
	} else if start.Index() < 0 {
		return services.Wrap(services.ErrValidation, "workflow", "resume",
			fmt.Sprintf("unknown stage %q", start), nil)
	}
	if prior, ok := item.Stages.PriorCompleted(start); !ok {
		return services.Wrap(services.ErrValidation, "workflow", "resume",
			fmt.Sprintf("cannot resume from %s: %s is not completed", start, prior), nil)
	}
	for _, name := range content.StageOrder[start.Index():] {
		rec := item.Stages.Get(name)
		*rec = content.StageRecord{Status: content.StagePending, RetryCount: rec.RetryCount}
	}
	return m.run(ctx, item, start)
}

func (m *Manager) load(ctx context.Context, contentID string) (*content.Content, error) {
	item, err := m.store.GetByID(ctx, contentID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "load content", "", err)
	}
	if item == nil || item.Deleted {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "load content",
			fmt.Sprintf("content %s not found", contentID), nil)
	}
	return item, nil
}

// run executes stages from start onward. Stage failures are recorded on the
// item; the returned error is the failure that stopped the pipeline.
func (m *Manager) run(ctx context.Context, item *content.Content, start content.StageName) error {
	ctx = services.WithContentID(ctx, item.ID)
	logger := logging.WithContext(ctx, m.logger)

	item.Status = content.StatusProcessing
	item.Pause = content.PauseInfo{}
	item.ErrorMessage = ""
	if err := m.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastItem(item)
	logger.Info("pipeline started",
		logging.EventType("pipeline_start"),
		logging.String("from_stage", string(start)),
	)

	pipelineStart := time.Now()
	for _, ps := range m.stageList()[start.Index():] {
		if prior, ok := item.Stages.PriorCompleted(ps.name); !ok {
			return services.Wrap(services.ErrValidation, string(ps.name), "precondition",
				fmt.Sprintf("%s is not completed", prior), nil)
		}
		if err := m.executeStage(ctx, ps, item); err != nil {
			return err
		}
	}

	item.Status = item.Stages.Aggregate()
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist pipeline result: %w", err)
		m.setLastError(wrapped)
		return wrapped
	}
	m.setLastItem(item)
	logger.Info("pipeline completed",
		logging.EventType("pipeline_complete"),
		logging.String("status", string(item.Status)),
		logging.Duration("duration", time.Since(pipelineStart)),
	)
	m.publish(ctx, eventContentCompleted(item))
	return nil
}

// executeStage runs one stage and records its outcome. A nil return means
// the pipeline may continue.
func (m *Manager) executeStage(ctx context.Context, ps pipelineStage, item *content.Content) error {
	ctx = services.WithStage(ctx, string(ps.name))
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	rec := item.Stages.Get(ps.name)
	started := m.now()
	*rec = content.StageRecord{Status: content.StageProcessing, StartedAt: &started, RetryCount: rec.RetryCount}
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist stage start: %w", err)
		logger.Error("failed to persist stage start", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	logger.Info("stage started",
		logging.EventType("stage_start"),
		logging.String("source", item.SourcePath),
	)
	m.publish(ctx, eventProgress(item, ps.name, 0, "started"))

	stageErr := m.invokeHandler(ctx, logger, ps, item)
	switch {
	case stageErr == nil:
	case errors.Is(stageErr, context.Canceled) || ctx.Err() != nil:
		logger.Debug("stage interrupted by shutdown")
		return stageErr
	case generation.IsTerminalQuota(stageErr):
		m.handleQuotaPause(ctx, ps.name, item, stageErr)
		m.setLastError(stageErr)
		return stageErr
	case ps.soft:
		m.handleSoftFailure(ctx, ps.name, item, stageErr)
		return nil
	default:
		m.handleStageFailure(ctx, ps.name, item, stageErr)
		m.setLastError(stageErr)
		return stageErr
	}

	completed := m.now()
	rec.Status = content.StageCompleted
	rec.Progress = 100
	rec.CompletedAt = &completed
	rec.Error = ""
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		logger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	logger.Info("stage completed",
		logging.EventType("stage_complete"),
		logging.Duration("stage_duration", completed.Sub(started)),
	)
	m.setLastItem(item)
	m.publish(ctx, eventStageCompleted(item, ps.name))
	return nil
}

func (m *Manager) invokeHandler(ctx context.Context, logger *slog.Logger, ps pipelineStage, item *content.Content) error {
	if ps.handler == nil {
		logger.Warn("missing stage handler", logging.String(logging.FieldStage, string(ps.name)))
		return services.Wrap(services.ErrConfiguration, string(ps.name), "dispatch", "stage handler unavailable", nil)
	}
	if err := ps.handler.Prepare(ctx, item); err != nil {
		return err
	}
	return ps.handler.Execute(ctx, item, m.progressReporter(ctx, ps.name, item))
}

// progressReporter persists changed percentages into the stage record and
// forwards every report to the notification sink.
func (m *Manager) progressReporter(ctx context.Context, name content.StageName, item *content.Content) stage.Progress {
	logger := logging.WithContext(ctx, m.logger)
	return func(percent int, message string) {
		rec := item.Stages.Get(name)
		if percent > rec.Progress && percent < 100 {
			rec.Progress = percent
			if err := m.store.Update(ctx, item); err != nil && ctx.Err() == nil {
				logger.Debug("progress update not persisted", logging.Error(err))
			}
		}
		m.publish(ctx, eventProgress(item, name, percent, message))
	}
}
