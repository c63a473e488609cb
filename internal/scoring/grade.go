package scoring

import (
	"sort"

	"studyforge/internal/content"
)

const (
	strongTopicRatio = 0.8
	weakTopicRatio   = 0.6
)

// Result is a graded attempt.
type Result struct {
	Answers     []content.SubmittedAnswer
	Score       float64
	MaxScore    float64
	Percentage  float64
	Performance content.Performance
}

// Grade scores answers against quiz. Every question appears in the result;
// unanswered questions are incorrect. Answers to unknown questions are ignored.
func Grade(quiz *content.Quiz, answers []content.SubmittedAnswer) Result {
	byID := make(map[string]content.AnswerValue, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = a.Answer
	}

	type bucket struct{ correct, total int }
	topics := make(map[string]*bucket)
	result := Result{Answers: make([]content.SubmittedAnswer, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		submitted := byID[q.ID]
		correct := IsCorrect(q, submitted)
		graded := content.SubmittedAnswer{QuestionID: q.ID, Answer: submitted, Correct: correct}
		if correct {
			graded.PointsAwarded = q.Points
			result.Score += q.Points
		}
		result.MaxScore += q.Points
		result.Answers = append(result.Answers, graded)

		for _, tag := range q.Tags {
			key := Normalize(tag)
			if key == "" {
				continue
			}
			b := topics[key]
			if b == nil {
				b = &bucket{}
				topics[key] = b
			}
			b.total++
			if correct {
				b.correct++
			}
		}
	}
	if result.MaxScore > 0 {
		result.Percentage = result.Score / result.MaxScore * 100
	}

	perf := content.Performance{StrongTopics: []string{}, WeakTopics: []string{}}
	for topic, b := range topics {
		ratio := float64(b.correct) / float64(b.total)
		switch {
		case ratio >= strongTopicRatio:
			perf.StrongTopics = append(perf.StrongTopics, topic)
		case ratio < weakTopicRatio:
			perf.WeakTopics = append(perf.WeakTopics, topic)
		}
	}
	sort.Strings(perf.StrongTopics)
	sort.Strings(perf.WeakTopics)
	result.Performance = perf
	return result
}

// IsCorrect grades one answer.
func IsCorrect(q content.Question, submitted content.AnswerValue) bool {
	if q.Type == content.QuestionEssay || submitted.IsZero() {
		return false
	}
	expected := normalizeAll(q.CorrectAnswer.Values)
	if len(expected) == 0 {
		return false
	}
	given := normalizeAll(submitted.Values)
	if q.CorrectAnswer.Multi {
		have := make(map[string]struct{}, len(given))
		for _, g := range given {
			have[g] = struct{}{}
		}
		for _, e := range expected {
			if _, ok := have[e]; !ok {
				return false
			}
		}
		return true
	}
	// A scalar answer accepts exactly one submitted value.
	return len(given) == 1 && given[0] == expected[0]
}
