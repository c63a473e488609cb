package content

import (
	"context"
	"database/sql"
	"fmt"
)

// CascadeResult counts the rows removed per table by DeleteCascade.
type CascadeResult struct {
	Rows map[string]int64
}

// Total returns the number of rows removed.
func (r CascadeResult) Total() int64 {
	var total int64
	for _, n := range r.Rows {
		total += n
	}
	return total
}

// cascadeSteps lists dependents before the rows they reference.
var cascadeSteps = []struct {
	table string
	query string
}{
	{"quiz_attempts", `DELETE FROM quiz_attempts WHERE quiz_id IN (SELECT id FROM quizzes WHERE content_id = ?)`},
	{"quizzes", `DELETE FROM quizzes WHERE content_id = ?`},
	{"flashcard_reviews", `DELETE FROM flashcard_reviews WHERE flashcard_id IN (SELECT id FROM flashcards WHERE content_id = ?)`},
	{"flashcards", `DELETE FROM flashcards WHERE content_id = ?`},
	{"transcripts", `DELETE FROM transcripts WHERE content_id = ?`},
	{"summaries", `DELETE FROM summaries WHERE content_id = ?`},
	{"concepts", `DELETE FROM concepts WHERE content_id = ?`},
	{"qa_entries", `DELETE FROM qa_entries WHERE content_id = ?`},
	{"chat_sessions", `DELETE FROM chat_sessions WHERE content_id = ?`},
	{"contents", `DELETE FROM contents WHERE id = ?`},
}

// DeleteCascade removes a content item and every dependent row in one
// transaction. Any failure rolls the whole cascade back. Deleting an item
// that is already gone succeeds with zero rows.
func (s *Store) DeleteCascade(ctx context.Context, contentID string) (CascadeResult, error) {
	result := CascadeResult{Rows: make(map[string]int64, len(cascadeSteps))}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, step := range cascadeSteps {
			res, err := tx.ExecContext(ctx, step.query, contentID)
			if err != nil {
				return fmt.Errorf("delete %s: %w", step.table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete %s: %w", step.table, err)
			}
			result.Rows[step.table] = n
		}
		return nil
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return result, nil
}
