package content

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageName identifies one of the five pipeline stages.
type StageName string

const (
	StageTranscription       StageName = "transcription"
	StageVectorization       StageName = "vectorization"
	StageSummarization       StageName = "summarization"
	StageFlashcardGeneration StageName = "flashcardGeneration"
	StageQuizGeneration      StageName = "quizGeneration"
)

// StageOrder is the fixed execution order.
var StageOrder = []StageName{
	StageTranscription,
	StageVectorization,
	StageSummarization,
	StageFlashcardGeneration,
	StageQuizGeneration,
}

// ParseStageName validates a stage identifier.
func ParseStageName(value string) (StageName, error) {
	for _, name := range StageOrder {
		if string(name) == value {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// Index returns the position of the stage in StageOrder, or -1.
func (n StageName) Index() int {
	for i, name := range StageOrder {
		if name == n {
			return i
		}
	}
	return -1
}

// StageStatus is the lifecycle of one stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
	StagePaused     StageStatus = "paused"
)

// StageRecord is the persisted state of one stage. The JSON shape is consumed
// by external tooling and must not change.
type StageRecord struct {
	Status      StageStatus `json:"status"`
	Progress    int         `json:"progress"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Error       string      `json:"error,omitempty"`
	RetryCount  int         `json:"retryCount,omitempty"`
}

// Stages holds exactly the five stage records.
type Stages struct {
	Transcription       StageRecord `json:"transcription"`
	Vectorization       StageRecord `json:"vectorization"`
	Summarization       StageRecord `json:"summarization"`
	FlashcardGeneration StageRecord `json:"flashcardGeneration"`
	QuizGeneration      StageRecord `json:"quizGeneration"`
}

// NewStages returns all five stages pending.
func NewStages() Stages {
	var s Stages
	for _, name := range StageOrder {
		*s.Get(name) = StageRecord{Status: StagePending}
	}
	return s
}

// Get returns a pointer to the named stage record. Unknown names return nil.
func (s *Stages) Get(name StageName) *StageRecord {
	switch name {
	case StageTranscription:
		return &s.Transcription
	case StageVectorization:
		return &s.Vectorization
	case StageSummarization:
		return &s.Summarization
	case StageFlashcardGeneration:
		return &s.FlashcardGeneration
	case StageQuizGeneration:
		return &s.QuizGeneration
	default:
		return nil
	}
}

// FirstIncomplete returns the first stage that is not completed.
func (s *Stages) FirstIncomplete() (StageName, bool) {
	for _, name := range StageOrder {
		if s.Get(name).Status != StageCompleted {
			return name, true
		}
	}
	return "", false
}

// AllCompleted reports whether every stage is completed.
func (s *Stages) AllCompleted() bool {
	_, incomplete := s.FirstIncomplete()
	return !incomplete
}

// PriorCompleted reports whether every stage before name is completed.
func (s *Stages) PriorCompleted(name StageName) (StageName, bool) {
	idx := name.Index()
	for i := 0; i < idx; i++ {
		prior := StageOrder[i]
		if s.Get(prior).Status != StageCompleted {
			return prior, false
		}
	}
	return "", true
}

// Aggregate derives the content status from stage statuses. Quiz generation
// is soft, so a failed quiz stage after four completed stages is completed.
func (s *Stages) Aggregate() Status {
	var pendingCount int
	for _, name := range StageOrder {
		rec := s.Get(name)
		switch rec.Status {
		case StagePaused:
			return StatusPaused
		case StageFailed:
			if name != StageQuizGeneration {
				return StatusFailed
			}
		case StageProcessing:
			return StatusProcessing
		case StagePending:
			pendingCount++
		}
	}
	if pendingCount == 0 {
		return StatusCompleted
	}
	return StatusPending
}

// Clone returns a deep copy.
func (s Stages) Clone() Stages {
	clone := s
	for _, name := range StageOrder {
		rec := clone.Get(name)
		rec.StartedAt = cloneTime(rec.StartedAt)
		rec.CompletedAt = cloneTime(rec.CompletedAt)
	}
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func encodeStages(s Stages) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode stages: %w", err)
	}
	return string(data), nil
}

func decodeStages(raw string) (Stages, error) {
	stages := NewStages()
	if raw == "" {
		return stages, nil
	}
	if err := json.Unmarshal([]byte(raw), &stages); err != nil {
		return Stages{}, fmt.Errorf("decode stages: %w", err)
	}
	return stages, nil
}
