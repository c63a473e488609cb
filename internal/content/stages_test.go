package content_test

import (
	"encoding/json"
	"testing"
	"time"

	"studyforge/internal/content"
)

func TestStageRecordJSONShape(t *testing.T) {
	stages := content.NewStages()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stages.Transcription = content.StageRecord{
		Status:      content.StageCompleted,
		Progress:    100,
		StartedAt:   &started,
		CompletedAt: &started,
	}
	stages.Vectorization = content.StageRecord{Status: content.StageFailed, Progress: 40, Error: "boom", RetryCount: 2}

	data, err := json.Marshal(stages)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"transcription":{"status":"completed","progress":100,"startedAt":"2026-03-01T10:00:00Z","completedAt":"2026-03-01T10:00:00Z"},` +
		`"vectorization":{"status":"failed","progress":40,"error":"boom","retryCount":2},` +
		`"summarization":{"status":"pending","progress":0},` +
		`"flashcardGeneration":{"status":"pending","progress":0},` +
		`"quizGeneration":{"status":"pending","progress":0}}`
	if string(data) != want {
		t.Fatalf("unexpected stage json:\n got %s\nwant %s", data, want)
	}
}

func TestStagesAggregate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*content.Stages)
		want   content.Status
	}{
		{"all pending", func(*content.Stages) {}, content.StatusPending},
		{"processing", func(s *content.Stages) { s.Transcription.Status = content.StageProcessing }, content.StatusProcessing},
		{"paused", func(s *content.Stages) {
			s.Transcription.Status = content.StageCompleted
			s.Vectorization.Status = content.StagePaused
		}, content.StatusPaused},
		{"hard failure", func(s *content.Stages) { s.Summarization.Status = content.StageFailed }, content.StatusFailed},
		{"soft quiz failure", func(s *content.Stages) {
			for _, name := range content.StageOrder[:4] {
				s.Get(name).Status = content.StageCompleted
			}
			s.QuizGeneration.Status = content.StageFailed
		}, content.StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stages := content.NewStages()
			tc.mutate(&stages)
			if got := stages.Aggregate(); got != tc.want {
				t.Fatalf("Aggregate() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPriorCompleted(t *testing.T) {
	stages := content.NewStages()
	stages.Transcription.Status = content.StageCompleted
	if blocker, ok := stages.PriorCompleted(content.StageSummarization); ok || blocker != content.StageVectorization {
		t.Fatalf("expected vectorization to block summarization, got %q ok=%v", blocker, ok)
	}
	if _, ok := stages.PriorCompleted(content.StageVectorization); !ok {
		t.Fatal("expected vectorization to be runnable")
	}
}

func TestAnswerValueAcceptsScalarsAndLists(t *testing.T) {
	var q content.Question
	if err := json.Unmarshal([]byte(`{"type":"true-false","question":"?","correctAnswer":true,"points":1}`), &q); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	if q.CorrectAnswer.Multi || q.CorrectAnswer.String() != "true" {
		t.Fatalf("unexpected scalar answer: %#v", q.CorrectAnswer)
	}
	if err := json.Unmarshal([]byte(`{"type":"multi-select","question":"?","correctAnswer":["a","b"],"points":2}`), &q); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if !q.CorrectAnswer.Multi || len(q.CorrectAnswer.Values) != 2 {
		t.Fatalf("unexpected list answer: %#v", q.CorrectAnswer)
	}
	data, err := json.Marshal(q.CorrectAnswer)
	if err != nil || string(data) != `["a","b"]` {
		t.Fatalf("unexpected marshal %s err=%v", data, err)
	}
}
