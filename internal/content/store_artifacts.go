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

// SaveTranscript writes the transcript for a content item, replacing any
// transcript left by an earlier run.
func (s *Store) SaveTranscript(ctx context.Context, transcript *Transcript) error {
	if transcript == nil {
		return errors.New("transcript is nil")
	}
	segments := transcript.Segments
	if segments == nil {
		segments = []Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = time.Now().UTC()
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO transcripts (content_id, full_text, segments_json, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(content_id) DO UPDATE SET
            full_text = excluded.full_text,
            segments_json = excluded.segments_json,
            created_at = excluded.created_at`,
		transcript.ContentID,
		transcript.FullText,
		string(segmentsJSON),
		formatTime(transcript.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// GetTranscript returns the transcript for a content item, or nil.
func (s *Store) GetTranscript(ctx context.Context, contentID string) (*Transcript, error) {
	var fullText, segmentsJSON, createdRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT full_text, segments_json, created_at FROM transcripts WHERE content_id = ?`,
		contentID,
	).Scan(&fullText, &segmentsJSON, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	transcript := &Transcript{ContentID: contentID, FullText: fullText}
	if err := json.Unmarshal([]byte(segmentsJSON), &transcript.Segments); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		transcript.CreatedAt = created
	}
	return transcript, nil
}

// SaveSummary replaces the summary and concept list of a content item.
func (s *Store) SaveSummary(ctx context.Context, summary *Summary) error {
	if summary == nil {
		return errors.New("summary is nil")
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM concepts WHERE content_id = ?`, summary.ContentID); err != nil {
			return fmt.Errorf("clear concepts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO summaries (content_id, summary, generated_by, created_at)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(content_id) DO UPDATE SET
                summary = excluded.summary,
                generated_by = excluded.generated_by,
                created_at = excluded.created_at`,
			summary.ContentID,
			summary.Text,
			nullableString(summary.GeneratedBy),
			formatTime(summary.CreatedAt),
		); err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
		for i, concept := range summary.Concepts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO concepts (content_id, position, term, definition) VALUES (?, ?, ?, ?)`,
				summary.ContentID, i, concept.Term, concept.Definition,
			); err != nil {
				return fmt.Errorf("save concept: %w", err)
			}
		}
		return nil
	})
}

// GetSummary returns the summary of a content item, or nil.
func (s *Store) GetSummary(ctx context.Context, contentID string) (*Summary, error) {
	var (
		text       string
		genBy      sql.NullString
		createdRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, generated_by, created_at FROM summaries WHERE content_id = ?`,
		contentID,
	).Scan(&text, &genBy, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	summary := &Summary{ContentID: contentID, Text: text, GeneratedBy: genBy.String}
	if created, err := parseTimeString(createdRaw); err == nil {
		summary.CreatedAt = created
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT term, definition FROM concepts WHERE content_id = ? ORDER BY position`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var concept Concept
		if err := rows.Scan(&concept.Term, &concept.Definition); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		summary.Concepts = append(summary.Concepts, concept)
	}
	return summary, rows.Err()
}

// ReplaceFlashcards swaps the generated cards of a content item. Cards that
// already carry review history are kept so the review log stays intact.
func (s *Store) ReplaceFlashcards(ctx context.Context, contentID string, cards []Flashcard) ([]Flashcard, error) {
	now := time.Now().UTC()
	stored := make([]Flashcard, 0, len(cards))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored = stored[:0]
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM flashcards
              WHERE content_id = ?
                AND id NOT IN (SELECT DISTINCT flashcard_id FROM flashcard_reviews WHERE content_id = ?)`,
			contentID, contentID,
		); err != nil {
			return fmt.Errorf("clear flashcards: %w", err)
		}
		for i, card := range cards {
			card.ID = uuid.NewString()
			card.ContentID = contentID
			card.Position = i
			if card.Type == "" {
				card.Type = FlashcardBasic
			}
			if card.SpacedRepetition.EaseFactor == 0 {
				card.SpacedRepetition.EaseFactor = DefaultEaseFactor
			}
			card.CreatedAt = now
			card.UpdatedAt = now
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO flashcards (
                    id, content_id, position, front, back, type, difficulty,
                    repetitions, interval_days, ease_factor, next_review_at, last_review_at,
                    times_reviewed, times_correct, times_incorrect, avg_response_ms,
                    created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?)`,
				card.ID,
				card.ContentID,
				card.Position,
				card.Front,
				card.Back,
				string(card.Type),
				card.Difficulty,
				card.SpacedRepetition.Repetitions,
				card.SpacedRepetition.IntervalDays,
				card.SpacedRepetition.EaseFactor,
				nullableTime(card.SpacedRepetition.NextReviewDate),
				nullableTime(card.SpacedRepetition.LastReviewDate),
				formatTime(now),
				formatTime(now),
			); err != nil {
				return fmt.Errorf("insert flashcard: %w", err)
			}
			stored = append(stored, card)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetFlashcard returns one card, or nil.
func (s *Store) GetFlashcard(ctx context.Context, id string) (*Flashcard, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flashcardColumns+` FROM flashcards WHERE id = ?`, id)
	card, err := scanFlashcard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flashcard: %w", err)
	}
	return card, nil
}

// ListFlashcards returns the cards of a content item in generation order.
func (s *Store) ListFlashcards(ctx context.Context, contentID string) ([]*Flashcard, error) {
	return s.queryFlashcards(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards WHERE content_id = ? ORDER BY position, created_at`,
		contentID,
	)
}

// ListDueFlashcards returns cards never reviewed or due at or before now.
func (s *Store) ListDueFlashcards(ctx context.Context, contentID string, now time.Time) ([]*Flashcard, error) {
	return s.queryFlashcards(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards
          WHERE content_id = ? AND (next_review_at IS NULL OR next_review_at <= ?)
          ORDER BY next_review_at IS NOT NULL, next_review_at, position`,
		contentID,
		formatTime(now),
	)
}

func (s *Store) queryFlashcards(ctx context.Context, query string, args ...any) ([]*Flashcard, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flashcards: %w", err)
	}
	defer rows.Close()
	var cards []*Flashcard
	for rows.Next() {
		card, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flashcard: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// UpdateFlashcardReviewState persists the scheduling state and statistics of a card.
func (s *Store) UpdateFlashcardReviewState(ctx context.Context, card *Flashcard) error {
	if card == nil {
		return errors.New("flashcard is nil")
	}
	card.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE flashcards
            SET repetitions = ?, interval_days = ?, ease_factor = ?, next_review_at = ?,
                last_review_at = ?, times_reviewed = ?, times_correct = ?, times_incorrect = ?,
                avg_response_ms = ?, updated_at = ?
          WHERE id = ?`,
		card.SpacedRepetition.Repetitions,
		card.SpacedRepetition.IntervalDays,
		card.SpacedRepetition.EaseFactor,
		nullableTime(card.SpacedRepetition.NextReviewDate),
		nullableTime(card.SpacedRepetition.LastReviewDate),
		card.Statistics.TimesReviewed,
		card.Statistics.TimesCorrect,
		card.Statistics.TimesIncorrect,
		float64(card.Statistics.AverageResponseTime)/float64(time.Millisecond),
		formatTime(card.UpdatedAt),
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("update flashcard: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update flashcard %s: %w", card.ID, sql.ErrNoRows)
	}
	return nil
}

// AppendReview adds an entry to the append-only review log.
func (s *Store) AppendReview(ctx context.Context, review *FlashcardReview) error {
	if review == nil {
		return errors.New("review is nil")
	}
	if review.ReviewedAt.IsZero() {
		review.ReviewedAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO flashcard_reviews (
            flashcard_id, content_id, quality, response_time_ms, correct,
            ease_factor, interval_days, reviewed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		review.FlashcardID,
		review.ContentID,
		review.Quality,
		review.ResponseTime.Milliseconds(),
		boolToInt(review.Correct),
		review.EaseFactor,
		review.IntervalDays,
		formatTime(review.ReviewedAt),
	)
	if err != nil {
		return fmt.Errorf("append review: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		review.ID = id
	}
	return nil
}

// ListReviews returns a card's review log, oldest first.
func (s *Store) ListReviews(ctx context.Context, flashcardID string) ([]FlashcardReview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flashcard_id, content_id, quality, response_time_ms, correct, ease_factor, interval_days, reviewed_at
           FROM flashcard_reviews WHERE flashcard_id = ? ORDER BY id`,
		flashcardID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	var reviews []FlashcardReview
	for rows.Next() {
		var (
			review     FlashcardReview
			responseMs int64
			correct    int64
			reviewed   string
		)
		if err := rows.Scan(&review.ID, &review.FlashcardID, &review.ContentID, &review.Quality,
			&responseMs, &correct, &review.EaseFactor, &review.IntervalDays, &reviewed); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		review.ResponseTime = time.Duration(responseMs) * time.Millisecond
		review.Correct = correct != 0
		if at, err := parseTimeString(reviewed); err == nil {
			review.ReviewedAt = at
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}
