package content

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the aggregate lifecycle of a content item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPaused     Status = "paused"
)

// Type distinguishes the source material of a content item.
type Type string

const (
	TypeVideo    Type = "video"
	TypeDocument Type = "document"
)

// ParseType maps user input onto a content type.
func ParseType(value string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(value))) {
	case TypeVideo:
		return TypeVideo, true
	case TypeDocument:
		return TypeDocument, true
	default:
		return "", false
	}
}

// PauseInfo describes why processing halted and when it may continue.
type PauseInfo struct {
	Reason     string
	RecoveryAt *time.Time
	Suggestion string
}

// Content is the aggregate root for one piece of study material.
type Content struct {
	ID           string
	Owner        string
	Type         Type
	Title        string
	SourcePath   string
	BlobKey      string
	Status       Status
	Stages       Stages
	Pause        PauseInfo
	ErrorMessage string
	Deleted      bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsPaused reports whether the item is waiting on a provider quota.
func (c *Content) IsPaused() bool {
	return c != nil && c.Status == StatusPaused
}

// Segment is one timed slice of a transcript.
type Segment struct {
	Index        int     `json:"index"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Text         string  `json:"text"`
}

// Transcript is the normalized text of a content item.
type Transcript struct {
	ContentID string
	FullText  string
	Segments  []Segment
	CreatedAt time.Time
}

// Concept is a key term extracted during summarization.
type Concept struct {
	Term       string `json:"term" validate:"required"`
	Definition string `json:"definition" validate:"required"`
}

// Summary is the summarization stage output.
type Summary struct {
	ContentID   string
	Text        string
	Concepts    []Concept
	GeneratedBy string
	CreatedAt   time.Time
}

// FlashcardType enumerates supported card layouts.
type FlashcardType string

const (
	FlashcardBasic      FlashcardType = "basic"
	FlashcardCloze      FlashcardType = "cloze"
	FlashcardDefinition FlashcardType = "definition"
)

// DefaultEaseFactor is the SM-2 starting ease.
const DefaultEaseFactor = 2.5

// SpacedRepetition is the SM-2 scheduling state of a card.
type SpacedRepetition struct {
	Repetitions    int
	IntervalDays   int
	EaseFactor     float64
	NextReviewDate *time.Time
	LastReviewDate *time.Time
}

// CardStatistics aggregates a card's review history.
type CardStatistics struct {
	TimesReviewed       int
	TimesCorrect        int
	TimesIncorrect      int
	AverageResponseTime time.Duration
}

// Flashcard is a generated study card.
type Flashcard struct {
	ID               string
	ContentID        string
	Position         int
	Front            string
	Back             string
	Type             FlashcardType
	Difficulty       string
	SpacedRepetition SpacedRepetition
	Statistics       CardStatistics
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FlashcardReview is one immutable review event.
type FlashcardReview struct {
	ID           int64
	FlashcardID  string
	ContentID    string
	Quality      int
	ResponseTime time.Duration
	Correct      bool
	EaseFactor   float64
	IntervalDays int
	ReviewedAt   time.Time
}

// Difficulty is a quiz difficulty level.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Difficulties lists the ladder from easiest to hardest.
var Difficulties = []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

// ParseDifficulty maps user input onto the difficulty ladder.
func ParseDifficulty(value string) (Difficulty, bool) {
	normalized := Difficulty(strings.ToLower(strings.TrimSpace(value)))
	for _, d := range Difficulties {
		if d == normalized {
			return d, true
		}
	}
	return "", false
}

// QuestionType enumerates supported quiz question formats.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionShortAnswer    QuestionType = "short-answer"
	QuestionFillBlank      QuestionType = "fill-blank"
	QuestionMultiSelect    QuestionType = "multi-select"
	QuestionEssay          QuestionType = "essay"
)

// AnswerValue holds a correct or submitted answer that may be a single string
// or a list of strings.
type AnswerValue struct {
	Values []string
	Multi  bool
}

// SingleAnswer builds a scalar answer.
func SingleAnswer(value string) AnswerValue {
	return AnswerValue{Values: []string{value}}
}

// MultiAnswer builds a list answer.
func MultiAnswer(values ...string) AnswerValue {
	return AnswerValue{Values: append([]string(nil), values...), Multi: true}
}

// IsZero reports whether no answer was supplied.
func (a AnswerValue) IsZero() bool {
	for _, v := range a.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// String renders the answer for display.
func (a AnswerValue) String() string {
	return strings.Join(a.Values, ", ")
}

// MarshalJSON emits a string for scalar answers and an array otherwise.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if !a.Multi {
		if len(a.Values) == 0 {
			return json.Marshal("")
		}
		return json.Marshal(a.Values[0])
	}
	values := a.Values
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// UnmarshalJSON accepts a string, an array of strings, a bool or a number.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var list []any
	if err := json.Unmarshal(data, &list); err == nil {
		a.Multi = true
		a.Values = make([]string, 0, len(list))
		for _, item := range list {
			a.Values = append(a.Values, scalarString(item))
		}
		return nil
	}
	var scalar any
	if err := json.Unmarshal(data, &scalar); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	a.Multi = false
	if scalar == nil {
		a.Values = nil
		return nil
	}
	a.Values = []string{scalarString(scalar)}
	return nil
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Question is one quiz item.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type" validate:"required,oneof=multiple-choice true-false short-answer fill-blank multi-select essay"`
	Prompt        string       `json:"question" validate:"required"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer AnswerValue  `json:"correctAnswer"`
	Points        float64      `json:"points" validate:"gte=0"`
	Tags          []string     `json:"tags,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
}

// Quiz is one version of a generated quiz for a (content, difficulty) pair.
type Quiz struct {
	ID                string
	ContentID         string
	Difficulty        Difficulty
	Version           int
	IsActive          bool
	PreviousVersionID string
	Title             string
	Questions         []Question
	GeneratedBy       string
	CreatedAt         time.Time
}

// MaxScore sums question points.
func (q *Quiz) MaxScore() float64 {
	var total float64
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// AttemptStatus tracks a quiz attempt lifecycle.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// SubmittedAnswer is a graded response to one question.
type SubmittedAnswer struct {
	QuestionID    string      `json:"questionId"`
	Answer        AnswerValue `json:"answer"`
	Correct       bool        `json:"correct"`
	PointsAwarded float64     `json:"pointsAwarded"`
}

// Performance summarizes per-topic results of an attempt.
type Performance struct {
	StrongTopics []string `json:"strongTopics"`
	WeakTopics   []string `json:"weakTopics"`
}

// QuizAttempt is one user's pass through a quiz.
type QuizAttempt struct {
	ID                    string
	QuizID                string
	ContentID             string
	UserID                string
	Status                AttemptStatus
	Answers               []SubmittedAnswer
	Score                 float64
	MaxScore              float64
	Percentage            float64
	TimeSpent             time.Duration
	Performance           Performance
	RecommendedDifficulty Difficulty
	StartedAt             time.Time
	CompletedAt           *time.Time
}

// IsTerminal reports whether the attempt can no longer change.
func (a *QuizAttempt) IsTerminal() bool {
	return a.Status == AttemptCompleted || a.Status == AttemptAbandoned
}

// ChatSession groups Q&A exchanges about one content item.
type ChatSession struct {
	ID        string
	ContentID string
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QAEntry is one answered question.
type QAEntry struct {
	ID        int64
	SessionID string
	ContentID string
	Question  string
	Answer    string
	Sources   []string
	Generator string
	CreatedAt time.Time
}

// SagaPhase is the last checkpoint a deletion saga reached.
type SagaPhase string

const (
	PhaseStarted        SagaPhase = "started"
	PhaseVectorsDeleted SagaPhase = "vectors_deleted"
	PhaseBlobDeleted    SagaPhase = "blob_deleted"
	PhasePrimaryDeleted SagaPhase = "primary_deleted"
)

// SagaStatus is the overall state of a deletion saga.
type SagaStatus string

const (
	SagaInProgress   SagaStatus = "in_progress"
	SagaCompleted    SagaStatus = "completed"
	SagaAborted      SagaStatus = "aborted"
	SagaInconsistent SagaStatus = "inconsistent"
)

// DeletionSaga records the progress of one permanent delete.
type DeletionSaga struct {
	ID          string
	ContentID   string
	RequestedBy string
	Phase       SagaPhase
	Status      SagaStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
