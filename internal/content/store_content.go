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

// NewContent describes an item handed in by the ingestion boundary.
type NewContent struct {
	Owner      string
	Type       Type
	Title      string
	SourcePath string
	BlobKey    string
}

// Create inserts a content item with all stages pending.
func (s *Store) Create(ctx context.Context, in NewContent) (*Content, error) {
	if in.Type == "" {
		in.Type = TypeDocument
	}
	stagesJSON, err := encodeStages(NewStages())
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	timestamp := formatTime(time.Now())

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO contents (
            id, owner, type, title, source_path, blob_key, status, stages_json,
            deleted, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id,
		in.Owner,
		string(in.Type),
		nullableString(in.Title),
		nullableString(in.SourcePath),
		nullableString(in.BlobKey),
		string(StatusPending),
		stagesJSON,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert content: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a content item. A missing item returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Content, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = ?`, id)
	item, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

// Update persists the lifecycle fields of a content item: status, stage
// record, pause info and last error.
func (s *Store) Update(ctx context.Context, item *Content) error {
	if item == nil {
		return errors.New("content is nil")
	}
	stagesJSON, err := encodeStages(item.Stages)
	if err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE contents
            SET status = ?, stages_json = ?, pause_reason = ?, pause_recovery_at = ?,
                pause_suggestion = ?, error_message = ?, title = ?, blob_key = ?, updated_at = ?
          WHERE id = ?`,
		string(item.Status),
		stagesJSON,
		nullableString(item.Pause.Reason),
		nullableTime(item.Pause.RecoveryAt),
		nullableString(item.Pause.Suggestion),
		nullableString(item.ErrorMessage),
		nullableString(item.Title),
		nullableString(item.BlobKey),
		formatTime(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update content %s: %w", item.ID, sql.ErrNoRows)
	}
	return nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Owner          string
	Statuses       []Status
	IncludeDeleted bool
	OnlyDeleted    bool
}

// List returns content items ordered by creation time.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Content, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Owner != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, filter.Owner)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	switch {
	case filter.OnlyDeleted:
		clauses = append(clauses, "deleted = 1")
	case !filter.IncludeDeleted:
		clauses = append(clauses, "deleted = 0")
	}
	query := `SELECT ` + contentColumns + ` FROM contents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	return s.queryContents(ctx, query, args...)
}

// ListRunnable returns pending items that are not soft-deleted.
func (s *Store) ListRunnable(ctx context.Context) ([]*Content, error) {
	return s.queryContents(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE status = ? AND deleted = 0 ORDER BY created_at, id`,
		string(StatusPending),
	)
}

// ListResumable returns paused items whose recovery estimate has passed.
func (s *Store) ListResumable(ctx context.Context, now time.Time) ([]*Content, error) {
	return s.queryContents(ctx,
		`SELECT `+contentColumns+` FROM contents
          WHERE status = ? AND deleted = 0
            AND (pause_recovery_at IS NULL OR pause_recovery_at <= ?)
          ORDER BY created_at, id`,
		string(StatusPaused),
		formatTime(now),
	)
}

// ListSoftDeletedBefore returns soft-deleted items deleted before cutoff.
func (s *Store) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]*Content, error) {
	return s.queryContents(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE deleted = 1 AND deleted_at <= ? ORDER BY deleted_at, id`,
		formatTime(cutoff),
	)
}

func (s *Store) queryContents(ctx context.Context, query string, args ...any) ([]*Content, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	var items []*Content
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkDeleted flags an item as soft-deleted.
func (s *Store) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE contents SET deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark deleted %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// SetBlobKey records where the item's source was retained.
func (s *Store) SetBlobKey(ctx context.Context, id, key string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE contents SET blob_key = ?, updated_at = ? WHERE id = ?`,
		nullableString(key), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set blob key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set blob key %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ClearDeleted restores a soft-deleted item.
func (s *Store) ClearDeleted(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE contents SET deleted = 0, deleted_at = NULL, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("clear deleted: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("clear deleted %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ReclaimInterrupted returns items left processing by a crashed run to
// pending. Stages that were processing revert to pending; completed stages
// are kept. It returns the reclaimed ids.
func (s *Store) ReclaimInterrupted(ctx context.Context) ([]string, error) {
	items, err := s.queryContents(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE status = ? AND deleted = 0`,
		string(StatusProcessing),
	)
	if err != nil {
		return nil, err
	}
	var reclaimed []string
	for _, item := range items {
		for _, name := range StageOrder {
			rec := item.Stages.Get(name)
			if rec.Status == StageProcessing {
				*rec = StageRecord{Status: StagePending, RetryCount: rec.RetryCount}
			}
		}
		item.Status = StatusPending
		if err := s.Update(ctx, item); err != nil {
			return reclaimed, err
		}
		reclaimed = append(reclaimed, item.ID)
	}
	return reclaimed, nil
}

// Stats returns a count of live items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM contents WHERE deleted = 0 GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("content stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
