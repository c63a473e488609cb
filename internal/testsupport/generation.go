package testsupport

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"studyforge/internal/config"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
)

// Responder produces the raw text for one request.
type Responder func(req generation.Request) (string, error)

// FakeGenerator is a scripted generation backend. Responses are looked up by
// task; Default answers any task without an entry.
type FakeGenerator struct {
	GeneratorID string
	Responses   map[generation.TaskType]Responder
	Default     Responder

	mu    sync.Mutex
	calls []generation.Request
}

// NewFakeGenerator returns a generator with the given id and no responses.
func NewFakeGenerator(id string) *FakeGenerator {
	return &FakeGenerator{GeneratorID: id, Responses: make(map[generation.TaskType]Responder)}
}

// On registers a responder for task.
func (f *FakeGenerator) On(task generation.TaskType, r Responder) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[task] = r
	return f
}

// Reply registers a fixed text for task.
func (f *FakeGenerator) Reply(task generation.TaskType, text string) *FakeGenerator {
	return f.On(task, func(generation.Request) (string, error) { return text, nil })
}

func (f *FakeGenerator) ID() string { return f.GeneratorID }

func (f *FakeGenerator) Generate(ctx context.Context, req generation.Request) (generation.Completion, error) {
	if err := ctx.Err(); err != nil {
		return generation.Completion{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	responder := f.Responses[req.Task]
	if responder == nil {
		responder = f.Default
	}
	f.mu.Unlock()
	if responder == nil {
		return generation.Completion{}, &generation.ProviderError{
			Generator: f.GeneratorID, Kind: generation.KindFatal, Message: "no scripted response for " + string(req.Task),
		}
	}
	text, err := responder(req)
	if err != nil {
		return generation.Completion{}, err
	}
	return generation.Completion{Text: text, FinishReason: "stop", Model: f.GeneratorID + "-model"}, nil
}

// Stream delivers the scripted text word by word.
func (f *FakeGenerator) Stream(ctx context.Context, req generation.Request, onToken func(string) error) (generation.Completion, error) {
	completion, err := f.Generate(ctx, req)
	if err != nil {
		return completion, err
	}
	words := strings.SplitAfter(completion.Text, " ")
	for _, word := range words {
		if word == "" {
			continue
		}
		if err := onToken(word); err != nil {
			return generation.Completion{}, err
		}
	}
	return completion, nil
}

// Calls returns every request received so far.
func (f *FakeGenerator) Calls() []generation.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generation.Request(nil), f.calls...)
}

// CallsFor counts requests for one task.
func (f *FakeGenerator) CallsFor(task generation.TaskType) int {
	n := 0
	for _, call := range f.Calls() {
		if call.Task == task {
			n++
		}
	}
	return n
}

// SingleGeneratorConfig routes every request class to one generator id.
func SingleGeneratorConfig(cfg *config.Config, id string) {
	cfg.Generation.Generators = []config.Generator{{ID: id, Backend: config.BackendOpenAI, Model: id + "-model", APIKey: "test"}}
	cfg.Generation.FallbackOrder = []string{id}
	cfg.Generation.Routing = config.Routing{Streaming: id, Lightweight: id, Default: id}
}

// NewInvoker builds an invoker over generators whose backoff waits return
// immediately.
func NewInvoker(t testing.TB, cfg *config.Config, generators ...generation.Generator) *generation.Invoker {
	t.Helper()
	router := generation.NewRouter(cfg.Generation, generators...)
	return generation.NewInvoker(cfg.Generation, router, logging.NewNop(),
		generation.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
}

// FakeEmbedder maps text onto deterministic unit-ish vectors derived from
// word hashes, so texts sharing words score as similar.
type FakeEmbedder struct {
	Dimensions int
	Err        error

	mu    sync.Mutex
	calls int
}

func (e *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	dims := e.Dimensions
	if dims <= 0 {
		dims = 16
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(word, ".,;:!?\"'")))
			vec[h.Sum32()%uint32(dims)]++
		}
		out[i] = vec
	}
	return out, nil
}

// Calls reports how many Embed calls were made.
func (e *FakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
