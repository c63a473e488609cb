package flashcards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/recovery"
	"studyforge/internal/services"
	"studyforge/internal/stage"
	"studyforge/internal/summarization"
)

const (
	stageName      = content.StageFlashcardGeneration
	excerptChars   = 8000
	tokensPerCard  = 90
	baseCardTokens = 400
)

// cardRecord is the generator-facing shape of one card.
type cardRecord struct {
	Front      string `json:"front" validate:"required"`
	Back       string `json:"back" validate:"required"`
	Type       string `json:"type" validate:"omitempty,oneof=basic cloze definition"`
	Difficulty string `json:"difficulty"`
}

// Generator is the flashcard stage handler.
type Generator struct {
	store   *content.Store
	invoker summarization.Invoker
	count   int
	retries int
	logger  *slog.Logger
}

// NewGenerator builds the stage handler. count is the number of cards asked
// for; retries bounds the reduced-scope attempts after an incomplete result.
func NewGenerator(store *content.Store, invoker summarization.Invoker, count, retries int, logger *slog.Logger) *Generator {
	if count <= 0 {
		count = 1
	}
	return &Generator{
		store:   store,
		invoker: invoker,
		count:   count,
		retries: retries,
		logger:  logging.NewComponentLogger(logger, "flashcards"),
	}
}

func (g *Generator) Name() content.StageName { return stageName }

// Prepare requires the summary produced by the previous stage.
func (g *Generator) Prepare(ctx context.Context, item *content.Content) error {
	_, err := g.summary(ctx, item.ID)
	return err
}

func (g *Generator) summary(ctx context.Context, id string) (*content.Summary, error) {
	summary, err := g.store.GetSummary(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, string(stageName), "load summary", "", err)
	}
	if summary == nil || strings.TrimSpace(summary.Text) == "" {
		return nil, stage.MissingArtifact(stageName, "summary", content.StageSummarization)
	}
	return summary, nil
}

// Execute generates and stores the card set.
func (g *Generator) Execute(ctx context.Context, item *content.Content, progress stage.Progress) error {
	logger := logging.WithContext(ctx, g.logger)
	summary, err := g.summary(ctx, item.ID)
	if err != nil {
		return err
	}
	excerpt := ""
	if tr, err := g.store.GetTranscript(ctx, item.ID); err == nil && tr != nil {
		excerpt = summarization.Excerpt(tr.FullText, excerptChars)
	}

	stage.Report(progress, 10, fmt.Sprintf("generating %d flashcards", g.count))
	build := func(count int) generation.Request {
		return generation.Request{
			Task:        generation.TaskFlashcards,
			Complexity:  generation.ComplexityModerate,
			System:      systemPrompt,
			Prompt:      fmt.Sprintf(promptTemplate, count, item.Title, summary.Text, conceptList(summary.Concepts), excerpt),
			Temperature: 0.4,
			MaxTokens:   baseCardTokens + count*tokensPerCard,
			JSON:        true,
		}
	}
	chain := g.invoker.Router().FallbackChain(generation.TaskFlashcards, generation.ComplexityModerate)
	records, err := generation.GenerateWithReducedScope[cardRecord](ctx, g.invoker, chain, build,
		generation.RecordOptions{Key: "flashcards", Policy: recovery.RequireRecords},
		generation.ScopeOptions{Requested: g.count, Retries: g.retries},
	)
	if err != nil {
		return err
	}
	if records.Parse.Warning != "" || records.Invalid > 0 || records.Skipped > 0 {
		logging.WarnWithContext(logger, "flashcard output needed repair", "flashcards_recovered",
			logging.String("method", string(records.Parse.Method)),
			logging.Int("invalid", records.Invalid),
			logging.Int("skipped", records.Skipped),
			logging.String(logging.FieldGenerator, records.Result.GeneratorUsed),
			logging.String(logging.FieldErrorHint, "inspect generator output if this repeats"),
			logging.String(logging.FieldImpact, "some cards may have been dropped"),
		)
	}

	cards := toCards(records.Items)
	stage.Report(progress, 85, fmt.Sprintf("storing %d flashcards", len(cards)))
	stored, err := g.store.ReplaceFlashcards(ctx, item.ID, cards)
	if err != nil {
		return services.Wrap(services.ErrTransient, string(stageName), "save flashcards", "", err)
	}
	logger.Info("flashcards stored",
		logging.Int("requested", g.count),
		logging.Int("stored", len(stored)),
		logging.String(logging.FieldGenerator, records.Result.GeneratorUsed),
	)
	stage.Report(progress, 100, fmt.Sprintf("%d flashcards ready", len(stored)))
	return nil
}

// HealthCheck reports readiness.
func (g *Generator) HealthCheck(context.Context) stage.Health {
	if g.invoker == nil {
		return stage.Unhealthy(string(stageName), "generation not configured")
	}
	return stage.Healthy(string(stageName))
}

func toCards(records []cardRecord) []content.Flashcard {
	seen := make(map[string]struct{}, len(records))
	cards := make([]content.Flashcard, 0, len(records))
	for _, record := range records {
		front := strings.TrimSpace(record.Front)
		key := strings.ToLower(front)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cards = append(cards, content.Flashcard{
			Front:      front,
			Back:       strings.TrimSpace(record.Back),
			Type:       content.FlashcardType(record.Type),
			Difficulty: strings.ToLower(strings.TrimSpace(record.Difficulty)),
		})
	}
	return cards
}

func conceptList(concepts []content.Concept) string {
	if len(concepts) == 0 {
		return "(none extracted)"
	}
	var b strings.Builder
	for _, concept := range concepts {
		fmt.Fprintf(&b, "- %s: %s\n", concept.Term, concept.Definition)
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ stage.Handler = (*Generator)(nil)
