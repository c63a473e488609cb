package workflow

import (
	"context"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	InFlight     int
	LastError    string
	LastItem     *content.Content
	ContentStats map[content.Status]int
	StageHealth  map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	inFlight := len(m.inFlight)
	lastErr := m.lastErr
	lastItem := m.lastItem
	stages := m.stages
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read content stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		if stg.handler == nil {
			health[string(stg.name)] = stage.Unhealthy(string(stg.name), "handler not configured")
			continue
		}
		health[string(stg.name)] = stg.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{Running: running, InFlight: inFlight, ContentStats: stats, StageHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	summary.LastItem = snapshotItem(lastItem)
	return summary
}

func snapshotItem(item *content.Content) *content.Content {
	if item == nil {
		return nil
	}
	snapshot := *item
	snapshot.Stages = item.Stages.Clone()
	return &snapshot
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *content.Content) {
	m.mu.Lock()
	m.lastItem = snapshotItem(item)
	m.mu.Unlock()
}
