package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateSaga opens a deletion saga at the started phase.
func (s *Store) CreateSaga(ctx context.Context, contentID, requestedBy string) (*DeletionSaga, error) {
	now := time.Now().UTC()
	saga := &DeletionSaga{
		ID:          uuid.NewString(),
		ContentID:   contentID,
		RequestedBy: requestedBy,
		Phase:       PhaseStarted,
		Status:      SagaInProgress,
		Attempts:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO deletion_sagas (id, content_id, requested_by, phase, status, attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		saga.ID,
		saga.ContentID,
		saga.RequestedBy,
		string(saga.Phase),
		string(saga.Status),
		saga.Attempts,
		formatTime(now),
		formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert saga: %w", err)
	}
	return saga, nil
}

// UpdateSaga checkpoints a saga's phase, status, attempts and last error.
func (s *Store) UpdateSaga(ctx context.Context, saga *DeletionSaga) error {
	if saga == nil {
		return errors.New("saga is nil")
	}
	saga.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE deletion_sagas SET phase = ?, status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(saga.Phase),
		string(saga.Status),
		saga.Attempts,
		nullableString(saga.LastError),
		formatTime(saga.UpdatedAt),
		saga.ID,
	)
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update saga %s: %w", saga.ID, sql.ErrNoRows)
	}
	return nil
}

// GetSaga returns a saga by id, or nil.
func (s *Store) GetSaga(ctx context.Context, id string) (*DeletionSaga, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sagaColumns+` FROM deletion_sagas WHERE id = ?`, id)
	saga, err := scanSaga(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get saga: %w", err)
	}
	return saga, nil
}

// SagaFilter narrows ListSagas.
type SagaFilter struct {
	Statuses      []SagaStatus
	ContentID     string
	UpdatedBefore time.Time
}

// ListSagas returns sagas matching filter, oldest first.
func (s *Store) ListSagas(ctx context.Context, filter SagaFilter) ([]*DeletionSaga, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.ContentID != "" {
		clauses = append(clauses, "content_id = ?")
		args = append(args, filter.ContentID)
	}
	if !filter.UpdatedBefore.IsZero() {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, formatTime(filter.UpdatedBefore))
	}
	query := `SELECT ` + sagaColumns + ` FROM deletion_sagas`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sagas: %w", err)
	}
	defer rows.Close()
	var sagas []*DeletionSaga
	for rows.Next() {
		saga, err := scanSaga(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saga: %w", err)
		}
		sagas = append(sagas, saga)
	}
	return sagas, rows.Err()
}
