package workflow

import (
	"studyforge/internal/content"
	"studyforge/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Transcription stage.Handler
	Vectorization stage.Handler
	Summarization stage.Handler
	Flashcards    stage.Handler
	Quizzes       stage.Handler
}

type pipelineStage struct {
	name    content.StageName
	handler stage.Handler
	// soft stages record failures without failing the item.
	soft bool
}
