package content

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const contentColumns = "id, owner, type, title, source_path, blob_key, status, stages_json, pause_reason, pause_recovery_at, pause_suggestion, error_message, deleted, deleted_at, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(scanner rowScanner) (*Content, error) {
	var (
		id, owner, typ, status, stagesJSON string
		title, sourcePath, blobKey         sql.NullString
		pauseReason, pauseRecovery         sql.NullString
		pauseSuggestion, errorMessage      sql.NullString
		deleted                            int64
		deletedAt                          sql.NullString
		createdRaw, updatedRaw             string
	)
	if err := scanner.Scan(
		&id,
		&owner,
		&typ,
		&title,
		&sourcePath,
		&blobKey,
		&status,
		&stagesJSON,
		&pauseReason,
		&pauseRecovery,
		&pauseSuggestion,
		&errorMessage,
		&deleted,
		&deletedAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	stages, err := decodeStages(stagesJSON)
	if err != nil {
		return nil, err
	}
	item := &Content{
		ID:           id,
		Owner:        owner,
		Type:         Type(typ),
		Title:        title.String,
		SourcePath:   sourcePath.String,
		BlobKey:      blobKey.String,
		Status:       Status(status),
		Stages:       stages,
		ErrorMessage: errorMessage.String,
		Deleted:      deleted != 0,
		Pause: PauseInfo{
			Reason:     pauseReason.String,
			Suggestion: pauseSuggestion.String,
			RecoveryAt: parseNullableTime(pauseRecovery),
		},
		DeletedAt: parseNullableTime(deletedAt),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

const flashcardColumns = "id, content_id, position, front, back, type, difficulty, repetitions, interval_days, ease_factor, next_review_at, last_review_at, times_reviewed, times_correct, times_incorrect, avg_response_ms, created_at, updated_at"

func scanFlashcard(scanner rowScanner) (*Flashcard, error) {
	var (
		card                   Flashcard
		cardType               string
		nextReview, lastReview sql.NullString
		avgMillis              float64
		createdRaw, updatedRaw string
	)
	if err := scanner.Scan(
		&card.ID,
		&card.ContentID,
		&card.Position,
		&card.Front,
		&card.Back,
		&cardType,
		&card.Difficulty,
		&card.SpacedRepetition.Repetitions,
		&card.SpacedRepetition.IntervalDays,
		&card.SpacedRepetition.EaseFactor,
		&nextReview,
		&lastReview,
		&card.Statistics.TimesReviewed,
		&card.Statistics.TimesCorrect,
		&card.Statistics.TimesIncorrect,
		&avgMillis,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	card.Type = FlashcardType(cardType)
	card.SpacedRepetition.NextReviewDate = parseNullableTime(nextReview)
	card.SpacedRepetition.LastReviewDate = parseNullableTime(lastReview)
	card.Statistics.AverageResponseTime = time.Duration(avgMillis * float64(time.Millisecond))
	if created, err := parseTimeString(createdRaw); err == nil {
		card.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		card.UpdatedAt = updated
	}
	return &card, nil
}

const quizColumns = "id, content_id, difficulty, version, is_active, previous_version_id, title, questions_json, generated_by, created_at"

func scanQuiz(scanner rowScanner) (*Quiz, error) {
	var (
		quiz                      Quiz
		difficulty, questionsJSON string
		active                    int64
		previous, title, genBy    sql.NullString
		createdRaw                string
	)
	if err := scanner.Scan(
		&quiz.ID,
		&quiz.ContentID,
		&difficulty,
		&quiz.Version,
		&active,
		&previous,
		&title,
		&questionsJSON,
		&genBy,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	quiz.Difficulty = Difficulty(difficulty)
	quiz.IsActive = active != 0
	quiz.PreviousVersionID = previous.String
	quiz.Title = title.String
	quiz.GeneratedBy = genBy.String
	if err := json.Unmarshal([]byte(questionsJSON), &quiz.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		quiz.CreatedAt = created
	}
	return &quiz, nil
}

const attemptColumns = "id, quiz_id, content_id, user_id, status, answers_json, score, max_score, percentage, time_spent_seconds, performance_json, recommended_difficulty, started_at, completed_at"

func scanAttempt(scanner rowScanner) (*QuizAttempt, error) {
	var (
		attempt               QuizAttempt
		status                string
		answersJSON, perfJSON sql.NullString
		recommended           sql.NullString
		timeSpent             int64
		startedRaw            string
		completedRaw          sql.NullString
	)
	if err := scanner.Scan(
		&attempt.ID,
		&attempt.QuizID,
		&attempt.ContentID,
		&attempt.UserID,
		&status,
		&answersJSON,
		&attempt.Score,
		&attempt.MaxScore,
		&attempt.Percentage,
		&timeSpent,
		&perfJSON,
		&recommended,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	attempt.Status = AttemptStatus(status)
	attempt.TimeSpent = time.Duration(timeSpent) * time.Second
	attempt.RecommendedDifficulty = Difficulty(recommended.String)
	if answersJSON.Valid && answersJSON.String != "" {
		if err := json.Unmarshal([]byte(answersJSON.String), &attempt.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	if perfJSON.Valid && perfJSON.String != "" {
		if err := json.Unmarshal([]byte(perfJSON.String), &attempt.Performance); err != nil {
			return nil, fmt.Errorf("decode performance: %w", err)
		}
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		attempt.StartedAt = started
	}
	attempt.CompletedAt = parseNullableTime(completedRaw)
	return &attempt, nil
}

const sagaColumns = "id, content_id, requested_by, phase, status, attempts, last_error, created_at, updated_at"

func scanSaga(scanner rowScanner) (*DeletionSaga, error) {
	var (
		saga                   DeletionSaga
		phase, status          string
		lastError              sql.NullString
		createdRaw, updatedRaw string
	)
	if err := scanner.Scan(
		&saga.ID,
		&saga.ContentID,
		&saga.RequestedBy,
		&phase,
		&status,
		&saga.Attempts,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	saga.Phase = SagaPhase(phase)
	saga.Status = SagaStatus(status)
	saga.LastError = lastError.String
	if created, err := parseTimeString(createdRaw); err == nil {
		saga.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		saga.UpdatedAt = updated
	}
	return &saga, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
