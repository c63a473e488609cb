package generation

import "context"

// TaskType names the kind of artifact a request produces.
type TaskType string

const (
	TaskSummarization TaskType = "summarization"
	TaskConcepts      TaskType = "concepts"
	TaskFlashcards    TaskType = "flashcards"
	TaskQuiz          TaskType = "quiz"
	TaskAnswer        TaskType = "answer"
)

// Complexity is the caller's estimate of how demanding a request is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Request is the backend-neutral generation request.
type Request struct {
	Task        TaskType
	Complexity  Complexity
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the backend for a JSON-only response when it supports one.
	JSON bool
}

// Completion is the canonical response every backend returns.
type Completion struct {
	Text         string
	FinishReason string
	Model        string
}

// Result describes a successful invocation across the fallback chain.
type Result struct {
	Completion
	GeneratorUsed string
	AttemptsMade  int
	FallbacksUsed []string
}

// Generator is one configured generation backend.
type Generator interface {
	ID() string
	Generate(ctx context.Context, req Request) (Completion, error)
}

// StreamGenerator is a Generator that can deliver tokens incrementally. The
// returned Completion carries the full concatenated text.
type StreamGenerator interface {
	Generator
	Stream(ctx context.Context, req Request, onToken func(token string) error) (Completion, error)
}

// Embedder turns text into vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
