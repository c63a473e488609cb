package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/scoring"
	"studyforge/internal/services"
	"studyforge/internal/testsupport"
)

func sampleQuiz() *content.Quiz {
	return &content.Quiz{
		ID:         "quiz-1",
		ContentID:  "content-1",
		Difficulty: content.DifficultyIntermediate,
		Questions: []content.Question{
			{ID: "q1", Type: content.QuestionMultipleChoice, Options: []string{"Paris", "Rome"}, CorrectAnswer: content.SingleAnswer("Paris"), Points: 1, Tags: []string{"Geography"}},
			{ID: "q2", Type: content.QuestionMultiSelect, Options: []string{"2", "3", "4"}, CorrectAnswer: content.MultiAnswer("2", "3"), Points: 2, Tags: []string{"math"}},
			{ID: "q3", Type: content.QuestionShortAnswer, CorrectAnswer: content.SingleAnswer("Photosynthesis"), Points: 1, Tags: []string{"biology"}},
			{ID: "q4", Type: content.QuestionEssay, Points: 1, Tags: []string{"biology"}},
		},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", scoring.Normalize("  Hello,   WORLD! "))
	assert.Equal(t, "strasse", scoring.Normalize("STRASSE."))
	assert.Equal(t, "", scoring.Normalize("?!"))
}

func TestIsCorrect(t *testing.T) {
	quiz := sampleQuiz()
	cases := []struct {
		name   string
		q      content.Question
		answer content.AnswerValue
		want   bool
	}{
		{"exact", quiz.Questions[0], content.SingleAnswer("Paris"), true},
		{"folded", quiz.Questions[0], content.SingleAnswer(" paris. "), true},
		{"wrong", quiz.Questions[0], content.SingleAnswer("Rome"), false},
		{"every option", quiz.Questions[0], content.MultiAnswer("Rome", "Madrid", "Paris"), false},
		{"single value list", quiz.Questions[0], content.MultiAnswer("Paris"), true},
		{"superset", quiz.Questions[1], content.MultiAnswer("4", "3", "2"), true},
		{"subset", quiz.Questions[1], content.MultiAnswer("2"), false},
		{"essay", quiz.Questions[3], content.SingleAnswer("long text"), false},
		{"empty", quiz.Questions[2], content.AnswerValue{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scoring.IsCorrect(tc.q, tc.answer))
		})
	}
}

func TestGradeBuildsTopicBuckets(t *testing.T) {
	result := scoring.Grade(sampleQuiz(), []content.SubmittedAnswer{
		{QuestionID: "q1", Answer: content.SingleAnswer("paris")},
		{QuestionID: "q2", Answer: content.MultiAnswer("2", "3")},
		{QuestionID: "q4", Answer: content.SingleAnswer("an essay")},
		{QuestionID: "unknown", Answer: content.SingleAnswer("x")},
	})

	require.Len(t, result.Answers, 4)
	assert.Equal(t, 3.0, result.Score)
	assert.Equal(t, 5.0, result.MaxScore)
	assert.InDelta(t, 60.0, result.Percentage, 0.001)
	assert.False(t, result.Answers[2].Correct, "unanswered question counts as incorrect")
	assert.Equal(t, 2.0, result.Answers[1].PointsAwarded)
	assert.Equal(t, []string{"geography", "math"}, result.Performance.StrongTopics)
	assert.Equal(t, []string{"biology"}, result.Performance.WeakTopics)
}

func TestRecommend(t *testing.T) {
	cases := []struct {
		name       string
		pct        float64
		avg        time.Duration
		current    content.Difficulty
		want       content.Difficulty
		change     scoring.Change
		borderline bool
	}{
		{"raise", 90, time.Minute, content.DifficultyBeginner, content.DifficultyIntermediate, scoring.ChangeRaise, false},
		{"raise fast", 82, 30 * time.Second, content.DifficultyIntermediate, content.DifficultyAdvanced, scoring.ChangeRaise, false},
		{"hold slow", 82, time.Minute, content.DifficultyIntermediate, content.DifficultyIntermediate, scoring.ChangeHold, false},
		{"clamp top", 95, 0, content.DifficultyAdvanced, content.DifficultyAdvanced, scoring.ChangeHold, false},
		{"lower", 40, 0, content.DifficultyAdvanced, content.DifficultyIntermediate, scoring.ChangeLower, false},
		{"clamp bottom", 10, 0, content.DifficultyBeginner, content.DifficultyBeginner, scoring.ChangeHold, false},
		{"borderline", 55, 0, content.DifficultyIntermediate, content.DifficultyIntermediate, scoring.ChangeHold, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := scoring.Recommend(tc.pct, tc.avg, tc.current)
			assert.Equal(t, tc.want, rec.Difficulty)
			assert.Equal(t, tc.change, rec.Change)
			assert.Equal(t, tc.borderline, rec.Borderline)
		})
	}
}

func newAttemptService(t *testing.T) (*scoring.AttemptService, *content.Store, *content.Quiz) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "owner", "")
	sample := sampleQuiz()
	quiz, err := store.CreateQuizVersion(context.Background(), content.QuizDraft{
		ContentID:  item.ID,
		Difficulty: content.DifficultyIntermediate,
		Title:      "Quiz",
		Questions:  sample.Questions,
	}, 3)
	require.NoError(t, err)
	return scoring.NewAttemptService(store, logging.NewNop()), store, quiz
}

func TestSubmitGradesAndCloses(t *testing.T) {
	svc, store, quiz := newAttemptService(t)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, quiz.ID, "learner")
	require.NoError(t, err)
	assert.Equal(t, content.AttemptInProgress, attempt.Status)
	assert.Equal(t, 5.0, attempt.MaxScore)

	graded, rec, err := svc.Submit(ctx, attempt.ID, []content.SubmittedAnswer{
		{QuestionID: "q1", Answer: content.SingleAnswer("Paris")},
		{QuestionID: "q2", Answer: content.MultiAnswer("2", "3")},
		{QuestionID: "q3", Answer: content.SingleAnswer("photosynthesis")},
	}, 40*time.Second)
	require.NoError(t, err)
	assert.Equal(t, scoring.ChangeRaise, rec.Change)
	assert.Equal(t, content.DifficultyAdvanced, graded.RecommendedDifficulty)

	stored, err := store.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, content.AttemptCompleted, stored.Status)
	assert.Equal(t, 4.0, stored.Score)
	assert.InDelta(t, 80.0, stored.Percentage, 0.001)

	_, _, err = svc.Submit(ctx, attempt.ID, nil, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.ErrorIs(t, err, content.ErrAttemptClosed)
}

func TestAbandonIsTerminal(t *testing.T) {
	svc, _, quiz := newAttemptService(t)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, quiz.ID, "learner")
	require.NoError(t, err)
	abandoned, err := svc.Abandon(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, content.AttemptAbandoned, abandoned.Status)

	_, err = svc.Abandon(ctx, attempt.ID)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestStartRejectsUnknownQuiz(t *testing.T) {
	svc, _, _ := newAttemptService(t)
	_, err := svc.Start(context.Background(), "missing", "learner")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
