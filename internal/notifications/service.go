package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyforge/internal/config"
)

const userAgent = "studyforge/0.1.0"

// Event enumerates the notifications the pipeline emits.
type Event string

const (
	EventStageProgress    Event = "stage_progress"
	EventStageCompleted   Event = "stage_completed"
	EventContentCompleted Event = "content_completed"
	EventContentPaused    Event = "content_paused"
	EventContentFailed    Event = "content_failed"
	EventQuizStageFailed  Event = "quiz_stage_failed"
	EventConsistencyAlert Event = "consistency_alert"
	EventBulkDeleted      Event = "bulk_deleted"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys follow the pipeline's camelCase naming:
// contentId, stage, progress, message, title, error, recoveryAt, suggestion.
type Payload map[string]any

// Service is the notification sink.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		progress: cfg.Notifications.Progress,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	progress bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if event == EventStageProgress && !n.progress {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	title := label(data)
	switch event {
	case EventStageProgress:
		return payload{
			title:    "studyforge - Progress",
			message:  fmt.Sprintf("%s: %s %d%% %s", title, str(data, "stage"), integer(data, "progress"), str(data, "message")),
			tags:     []string{"studyforge", "progress"},
			priority: "low",
		}, true
	case EventStageCompleted:
		return payload{
			title:   "studyforge - Stage Complete",
			message: fmt.Sprintf("%s: %s complete", title, str(data, "stage")),
			tags:    []string{"studyforge", "stage", "completed"},
		}, true
	case EventContentCompleted:
		return payload{
			title:    "studyforge - Ready",
			message:  fmt.Sprintf("✅ Study set ready: %s", title),
			tags:     []string{"studyforge", "pipeline", "completed"},
			priority: "high",
		}, true
	case EventContentPaused:
		message := fmt.Sprintf("⏸️ Paused at %s: %s", str(data, "stage"), title)
		if at := str(data, "recoveryAt"); at != "" {
			message += fmt.Sprintf("\nResumes after %s", at)
		}
		if suggestion := str(data, "suggestion"); suggestion != "" {
			message += "\n" + suggestion
		}
		return payload{
			title:   "studyforge - Quota Pause",
			message: message,
			tags:    []string{"studyforge", "quota", "paused"},
		}, true
	case EventContentFailed:
		return payload{
			title:    "studyforge - Error",
			message:  fmt.Sprintf("❌ %s failed at %s: %s", title, str(data, "stage"), str(data, "error")),
			tags:     []string{"studyforge", "error", "alert"},
			priority: "high",
		}, true
	case EventQuizStageFailed:
		return payload{
			title:   "studyforge - Quizzes Unavailable",
			message: fmt.Sprintf("%s completed without quizzes: %s", title, str(data, "error")),
			tags:    []string{"studyforge", "quiz", "warning"},
		}, true
	case EventConsistencyAlert:
		return payload{
			title:    "studyforge - Inconsistent Delete",
			message:  fmt.Sprintf("⚠️ Deletion of %s left stores inconsistent (saga %s): %s", str(data, "contentId"), str(data, "sagaId"), str(data, "error")),
			tags:     []string{"studyforge", "deletion", "alert"},
			priority: "urgent",
		}, true
	case EventBulkDeleted:
		return payload{
			title: "studyforge - Bulk Delete",
			message: fmt.Sprintf("Deleted %d items (%d failed, %d inconsistent)",
				integer(data, "succeeded"), integer(data, "failed"), integer(data, "inconsistent")),
			tags: []string{"studyforge", "deletion"},
		}, true
	case EventTest:
		return payload{
			title:    "studyforge - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"studyforge", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func label(data Payload) string {
	if title := str(data, "title"); title != "" {
		return title
	}
	if id := str(data, "contentId"); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		return "content " + id
	}
	return "content"
}

func str(data Payload, key string) string {
	value, ok := data[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func integer(data Payload, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a Service that discards every event.
func NewNoop() Service { return noopService{} }
