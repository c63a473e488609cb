package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/services"
)

// pauseFallback is the recovery estimate used when a quota error carries none.
const pauseFallback = time.Hour

func (m *Manager) handleStageFailure(ctx context.Context, name content.StageName, item *content.Content, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	message := classifyStageFailure(name, stageErr)

	rec := item.Stages.Get(name)
	rec.Status = content.StageFailed
	rec.Error = message
	rec.RetryCount++
	item.Status = content.StatusFailed
	item.ErrorMessage = message

	details := services.Details(stageErr)
	attrs := []logging.Attr{
		logging.String("resolved_status", string(content.StatusFailed)),
		logging.String("error_message", message),
		logging.Int("retry_count", rec.RetryCount),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorOperation, details.Operation),
		logging.String(logging.FieldErrorHint, failureHint(name, details.Hint)),
		logging.EventType("stage_failure"),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	logger.Error("stage failed", logging.Args(attrs...)...)

	m.persistOutcome(ctx, item, "stage failure")
	m.setLastItem(item)
	m.publish(ctx, eventContentFailed(item, name, message))
}

// handleQuotaPause parks the item until the quota is expected to recover.
// Later stages stay pending.
func (m *Manager) handleQuotaPause(ctx context.Context, name content.StageName, item *content.Content, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	reason := strings.TrimSpace(stageErr.Error())
	suggestion := "wait for the quota to recover or configure another generator in generation.generators"
	recovery := m.now().Add(pauseFallback)
	if quota, ok := generation.AsQuota(stageErr); ok {
		reason = quota.Error()
		suggestion = quota.Suggestion()
		if !quota.RecoveryAt.IsZero() {
			recovery = quota.RecoveryAt.UTC()
		}
	}

	rec := item.Stages.Get(name)
	rec.Status = content.StagePaused
	rec.Error = reason
	item.Status = content.StatusPaused
	item.Pause = content.PauseInfo{Reason: reason, RecoveryAt: &recovery, Suggestion: suggestion}

	logging.WarnWithContext(logger, "stage paused on provider quota", "stage_paused",
		logging.String("reason", reason),
		logging.String("recovery_at", recovery.Format(time.RFC3339)),
		logging.String(logging.FieldErrorKind, string(services.ErrorKindQuotaExceeded)),
		logging.String(logging.FieldErrorHint, suggestion),
		logging.String(logging.FieldImpact, "processing resumes after the recovery estimate"),
	)
	m.persistOutcome(ctx, item, "quota pause")
	m.setLastItem(item)
	m.publish(ctx, eventContentPaused(item, name))
}

// handleSoftFailure records a failure of a soft stage. The item still
// completes.
func (m *Manager) handleSoftFailure(ctx context.Context, name content.StageName, item *content.Content, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	message := classifyStageFailure(name, stageErr)

	rec := item.Stages.Get(name)
	rec.Status = content.StageFailed
	rec.Error = message
	rec.RetryCount++

	logging.WarnWithContext(logger, "soft stage failed; content completes without its output", "soft_stage_failure",
		logging.Error(stageErr),
		logging.String(logging.FieldErrorKind, string(services.KindOf(stageErr))),
		logging.String(logging.FieldErrorHint, "regenerate quizzes on demand or resume from "+string(name)),
		logging.String(logging.FieldImpact, "no quizzes for this content"),
	)
	m.persistOutcome(ctx, item, "soft stage failure")
	m.publish(ctx, eventQuizStageFailed(item, message))
}

func (m *Manager) persistOutcome(ctx context.Context, item *content.Content, what string) {
	if err := m.store.Update(ctx, item); err != nil {
		logger := logging.WithContext(ctx, m.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist " + what)
			return
		}
		logger.Error("failed to persist "+what, logging.Error(err))
	}
}

func classifyStageFailure(name content.StageName, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", name)
	}
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = fmt.Sprintf("%s failed", name)
	}
	return message
}

func failureHint(name content.StageName, hint string) string {
	if strings.TrimSpace(hint) != "" {
		return hint
	}
	return "fix the cause and resume from " + string(name)
}
