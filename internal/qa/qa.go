package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/vectorstore"
)

const (
	component      = "qa"
	maxQuestionLen = 2000
)

// Streamer is the generation surface Q&A needs.
type Streamer interface {
	InvokeStream(ctx context.Context, chain []string, req generation.Request, onToken func(string) error) (generation.Result, error)
	Router() *generation.Router
}

// Answer is a persisted Q&A exchange.
type Answer struct {
	SessionID string
	Entry     content.QAEntry
}

// Service answers questions grounded in vectorized content.
type Service struct {
	store    *content.Store
	vectors  vectorstore.Store
	embedder generation.Embedder
	streamer Streamer
	topK     int
	logger   *slog.Logger
}

// NewService builds a Q&A service returning up to topK context chunks per question.
func NewService(store *content.Store, vectors vectorstore.Store, embedder generation.Embedder, streamer Streamer, topK int, logger *slog.Logger) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		streamer: streamer,
		topK:     topK,
		logger:   logging.NewComponentLogger(logger, component),
	}
}

// Ask answers question about contentID, streaming tokens to onToken. An
// empty sessionID starts a new session.
func (s *Service) Ask(ctx context.Context, contentID, sessionID, requester, question string, onToken func(string) error) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, services.Wrap(services.ErrValidation, component, "ask", "question must not be empty", nil)
	}
	if len(question) > maxQuestionLen {
		return nil, services.Wrap(services.ErrValidation, component, "ask",
			fmt.Sprintf("question exceeds %d characters", maxQuestionLen), nil)
	}
	item, err := s.store.GetByID(ctx, contentID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "load content", "", err)
	}
	if item == nil || item.Deleted {
		return nil, services.Wrap(services.ErrNotFound, component, "load content", fmt.Sprintf("content %s not found", contentID), nil)
	}
	if item.Stages.Get(content.StageVectorization).Status != content.StageCompleted {
		return nil, services.Wrap(services.ErrValidation, component, "ask", "content has not been vectorized yet", nil)
	}
	logger := logging.WithContext(services.WithContentID(ctx, contentID), s.logger)

	matches, err := s.retrieve(ctx, contentID, question)
	if err != nil {
		return nil, err
	}
	prompt, err := answerPrompt.Format(map[string]any{
		"title":    item.Title,
		"context":  formatContext(matches),
		"question": question,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "build prompt", "", err)
	}

	req := generation.Request{
		Task:        generation.TaskAnswer,
		Complexity:  generation.ComplexityModerate,
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   800,
	}
	chain := s.streamer.Router().StreamingChain(req.Task, req.Complexity)
	result, err := s.streamer.InvokeStream(ctx, chain, req, onToken)
	if err != nil {
		return nil, err
	}

	session, err := s.store.EnsureChatSession(ctx, sessionID, contentID, requester)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "open session", "", err)
	}
	entry := content.QAEntry{
		SessionID: session.ID,
		ContentID: contentID,
		Question:  question,
		Answer:    strings.TrimSpace(result.Text),
		Sources:   sourceIDs(matches),
		Generator: result.GeneratorUsed,
	}
	if err := s.store.AppendQAEntry(ctx, &entry); err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "persist answer", "", err)
	}
	logger.Info("question answered",
		logging.EventType("qa_answered"),
		logging.String("session_id", session.ID),
		logging.Int("sources", len(matches)),
		logging.String(logging.FieldGenerator, result.GeneratorUsed),
	)
	return &Answer{SessionID: session.ID, Entry: entry}, nil
}

// History returns the exchanges of one session.
func (s *Service) History(ctx context.Context, sessionID string) ([]content.QAEntry, error) {
	entries, err := s.store.ListQAEntries(ctx, sessionID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "list history", "", err)
	}
	return entries, nil
}

func (s *Service) retrieve(ctx context.Context, contentID, question string) ([]vectorstore.Match, error) {
	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, component, "embed question", "", err)
	}
	if len(vectors) != 1 {
		return nil, services.Wrap(services.ErrExternalTool, component, "embed question",
			fmt.Sprintf("embedder returned %d vectors", len(vectors)), nil)
	}
	matches, err := s.vectors.Query(ctx, vectors[0], vectorstore.ContentFilter(contentID), s.topK)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, component, "query vectors", "", err)
	}
	return matches, nil
}

func formatContext(matches []vectorstore.Match) string {
	if len(matches) == 0 {
		return "(no excerpts found)"
	}
	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(m.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sourceIDs(matches []vectorstore.Match) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}
