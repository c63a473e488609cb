package workflow

import (
	"context"
	"errors"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
)

type event struct {
	kind    notifications.Event
	payload notifications.Payload
}

func (m *Manager) publish(ctx context.Context, ev event) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, ev.kind, ev.payload); err != nil {
		logger := logging.WithContext(ctx, m.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification")
			return
		}
		logger.Debug("notification failed", logging.String("event", string(ev.kind)), logging.Error(err))
	}
}

func basePayload(item *content.Content) notifications.Payload {
	return notifications.Payload{"contentId": item.ID, "title": item.Title}
}

func eventProgress(item *content.Content, name content.StageName, percent int, message string) event {
	p := basePayload(item)
	p["stage"] = string(name)
	p["progress"] = percent
	p["message"] = message
	return event{kind: notifications.EventStageProgress, payload: p}
}

func eventStageCompleted(item *content.Content, name content.StageName) event {
	p := basePayload(item)
	p["stage"] = string(name)
	return event{kind: notifications.EventStageCompleted, payload: p}
}

func eventContentCompleted(item *content.Content) event {
	return event{kind: notifications.EventContentCompleted, payload: basePayload(item)}
}

func eventContentFailed(item *content.Content, name content.StageName, message string) event {
	p := basePayload(item)
	p["stage"] = string(name)
	p["error"] = message
	return event{kind: notifications.EventContentFailed, payload: p}
}

func eventContentPaused(item *content.Content, name content.StageName) event {
	p := basePayload(item)
	p["stage"] = string(name)
	p["reason"] = item.Pause.Reason
	p["suggestion"] = item.Pause.Suggestion
	if item.Pause.RecoveryAt != nil {
		p["recoveryAt"] = item.Pause.RecoveryAt.UTC().Format(time.RFC3339)
	}
	return event{kind: notifications.EventContentPaused, payload: p}
}

func eventQuizStageFailed(item *content.Content, message string) event {
	p := basePayload(item)
	p["error"] = message
	return event{kind: notifications.EventQuizStageFailed, payload: p}
}
