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

// QuizDraft is a generated quiz awaiting a version number.
type QuizDraft struct {
	ContentID   string
	Difficulty  Difficulty
	Title       string
	Questions   []Question
	GeneratedBy string
}

// CreateQuizVersion installs draft as the active quiz for its (content,
// difficulty) pair in one transaction: the prior active version is
// deactivated, the new version links back to it, and superseded versions
// beyond retained that have no attempts are pruned. Readers observe either
// the old or the new active quiz.
func (s *Store) CreateQuizVersion(ctx context.Context, draft QuizDraft, retained int) (*Quiz, error) {
	if draft.ContentID == "" || draft.Difficulty == "" {
		return nil, errors.New("quiz draft requires content and difficulty")
	}
	questions := draft.Questions
	if questions == nil {
		questions = []Question{}
	}
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}

	quiz := &Quiz{
		ContentID:   draft.ContentID,
		Difficulty:  draft.Difficulty,
		IsActive:    true,
		Title:       draft.Title,
		Questions:   questions,
		GeneratedBy: draft.GeneratedBy,
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		quiz.ID = uuid.NewString()
		quiz.CreatedAt = time.Now().UTC()
		quiz.PreviousVersionID = ""

		var maxVersion sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(version) FROM quizzes WHERE content_id = ? AND difficulty = ?`,
			draft.ContentID, string(draft.Difficulty),
		).Scan(&maxVersion); err != nil {
			return fmt.Errorf("read quiz version: %w", err)
		}
		quiz.Version = int(maxVersion.Int64) + 1

		var activeID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM quizzes WHERE content_id = ? AND difficulty = ? AND is_active = 1`,
			draft.ContentID, string(draft.Difficulty),
		).Scan(&activeID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read active quiz: %w", err)
		default:
			quiz.PreviousVersionID = activeID
			if _, err := tx.ExecContext(ctx, `UPDATE quizzes SET is_active = 0 WHERE id = ?`, activeID); err != nil {
				return fmt.Errorf("deactivate quiz: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quizzes (
                id, content_id, difficulty, version, is_active, previous_version_id,
                title, questions_json, generated_by, created_at
            ) VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
			quiz.ID,
			quiz.ContentID,
			string(quiz.Difficulty),
			quiz.Version,
			nullableString(quiz.PreviousVersionID),
			nullableString(quiz.Title),
			string(questionsJSON),
			nullableString(quiz.GeneratedBy),
			formatTime(quiz.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}

		return pruneQuizVersions(ctx, tx, quiz.ContentID, quiz.Difficulty, retained)
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// pruneQuizVersions removes inactive versions older than the newest retained
// superseded ones. Versions with attempts are never pruned.
func pruneQuizVersions(ctx context.Context, tx *sql.Tx, contentID string, difficulty Difficulty, retained int) error {
	if retained < 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM quizzes
          WHERE content_id = ? AND difficulty = ? AND is_active = 0
            AND id NOT IN (SELECT DISTINCT quiz_id FROM quiz_attempts)
            AND id NOT IN (
                SELECT id FROM quizzes
                 WHERE content_id = ? AND difficulty = ? AND is_active = 0
                 ORDER BY version DESC
                 LIMIT ?
            )`,
		contentID, string(difficulty), contentID, string(difficulty), retained,
	)
	if err != nil {
		return fmt.Errorf("prune quiz versions: %w", err)
	}
	return nil
}

// GetQuiz returns a quiz by id, or nil.
func (s *Store) GetQuiz(ctx context.Context, id string) (*Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, id)
	quiz, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	return quiz, nil
}

// ActiveQuiz returns the active quiz for a (content, difficulty) pair, or nil.
func (s *Store) ActiveQuiz(ctx context.Context, contentID string, difficulty Difficulty) (*Quiz, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE content_id = ? AND difficulty = ? AND is_active = 1`,
		contentID, string(difficulty),
	)
	quiz, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active quiz: %w", err)
	}
	return quiz, nil
}

// ListQuizVersions returns every retained version for a (content, difficulty)
// pair, newest first.
func (s *Store) ListQuizVersions(ctx context.Context, contentID string, difficulty Difficulty) ([]*Quiz, error) {
	return s.queryQuizzes(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE content_id = ? AND difficulty = ? ORDER BY version DESC`,
		contentID, string(difficulty),
	)
}

// ListActiveQuizzes returns the active quiz of each difficulty for a content item.
func (s *Store) ListActiveQuizzes(ctx context.Context, contentID string) ([]*Quiz, error) {
	return s.queryQuizzes(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE content_id = ? AND is_active = 1 ORDER BY difficulty`,
		contentID,
	)
}

func (s *Store) queryQuizzes(ctx context.Context, query string, args ...any) ([]*Quiz, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()
	var quizzes []*Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

// CreateAttempt opens an in-progress attempt for a quiz.
func (s *Store) CreateAttempt(ctx context.Context, quiz *Quiz, userID string) (*QuizAttempt, error) {
	if quiz == nil {
		return nil, errors.New("quiz is nil")
	}
	attempt := &QuizAttempt{
		ID:        uuid.NewString(),
		QuizID:    quiz.ID,
		ContentID: quiz.ContentID,
		UserID:    userID,
		Status:    AttemptInProgress,
		MaxScore:  quiz.MaxScore(),
		StartedAt: time.Now().UTC(),
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, content_id, user_id, status, max_score, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.QuizID,
		attempt.ContentID,
		attempt.UserID,
		string(attempt.Status),
		attempt.MaxScore,
		formatTime(attempt.StartedAt),
	); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return attempt, nil
}

// GetAttempt returns an attempt by id, or nil.
func (s *Store) GetAttempt(ctx context.Context, id string) (*QuizAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = ?`, id)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// CloseAttempt moves an in-progress attempt to its terminal state. Closing an
// attempt that is already terminal returns ErrAttemptClosed.
func (s *Store) CloseAttempt(ctx context.Context, attempt *QuizAttempt) error {
	if attempt == nil {
		return errors.New("attempt is nil")
	}
	if !attempt.IsTerminal() {
		return fmt.Errorf("close attempt: target status %q is not terminal", attempt.Status)
	}
	answers := attempt.Answers
	if answers == nil {
		answers = []SubmittedAnswer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	perfJSON, err := json.Marshal(attempt.Performance)
	if err != nil {
		return fmt.Errorf("encode performance: %w", err)
	}
	if attempt.CompletedAt == nil {
		now := time.Now().UTC()
		attempt.CompletedAt = &now
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE quiz_attempts
            SET status = ?, answers_json = ?, score = ?, max_score = ?, percentage = ?,
                time_spent_seconds = ?, performance_json = ?, recommended_difficulty = ?, completed_at = ?
          WHERE id = ? AND status = ?`,
		string(attempt.Status),
		string(answersJSON),
		attempt.Score,
		attempt.MaxScore,
		attempt.Percentage,
		int64(attempt.TimeSpent/time.Second),
		string(perfJSON),
		nullableString(string(attempt.RecommendedDifficulty)),
		nullableTime(attempt.CompletedAt),
		attempt.ID,
		string(AttemptInProgress),
	)
	if err != nil {
		return fmt.Errorf("close attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAttemptClosed
	}
	return nil
}
