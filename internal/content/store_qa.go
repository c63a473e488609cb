package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnsureChatSession returns the session with id, creating it when absent. An
// empty id always creates a new session.
func (s *Store) EnsureChatSession(ctx context.Context, id, contentID, owner string) (*ChatSession, error) {
	if id != "" {
		session, err := s.GetChatSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if session != nil {
			if session.ContentID != contentID {
				return nil, fmt.Errorf("chat session %s belongs to another content item", id)
			}
			return session, nil
		}
	} else {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	session := &ChatSession{ID: id, ContentID: contentID, Owner: owner, CreatedAt: now, UpdatedAt: now}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO chat_sessions (id, content_id, owner, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.ContentID, session.Owner, formatTime(now), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert chat session: %w", err)
	}
	return session, nil
}

// GetChatSession returns a session by id, or nil.
func (s *Store) GetChatSession(ctx context.Context, id string) (*ChatSession, error) {
	var (
		session                ChatSession
		createdRaw, updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content_id, owner, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.ContentID, &session.Owner, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		session.UpdatedAt = updated
	}
	return &session, nil
}

// AppendQAEntry records an answered question and touches its session.
func (s *Store) AppendQAEntry(ctx context.Context, entry *QAEntry) error {
	if entry == nil {
		return errors.New("qa entry is nil")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	sources := entry.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO qa_entries (session_id, content_id, question, answer, sources_json, generator, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.SessionID,
			entry.ContentID,
			entry.Question,
			entry.Answer,
			string(sourcesJSON),
			nullableString(entry.Generator),
			formatTime(entry.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert qa entry: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			entry.ID = id
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
			formatTime(entry.CreatedAt), entry.SessionID,
		); err != nil {
			return fmt.Errorf("touch chat session: %w", err)
		}
		return nil
	})
}

// ListQAEntries returns the entries of a session, oldest first.
func (s *Store) ListQAEntries(ctx context.Context, sessionID string) ([]QAEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, content_id, question, answer, sources_json, generator, created_at
           FROM qa_entries WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list qa entries: %w", err)
	}
	defer rows.Close()
	var entries []QAEntry
	for rows.Next() {
		var (
			entry       QAEntry
			sourcesJSON sql.NullString
			generator   sql.NullString
			createdRaw  string
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.ContentID, &entry.Question,
			&entry.Answer, &sourcesJSON, &generator, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan qa entry: %w", err)
		}
		entry.Generator = generator.String
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &entry.Sources); err != nil {
				return nil, fmt.Errorf("decode sources: %w", err)
			}
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
