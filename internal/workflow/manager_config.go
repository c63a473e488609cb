package workflow

import "studyforge/internal/content"

// ConfigureStages registers the stage handlers in pipeline order. A nil
// handler fails its stage when reached.
func (m *Manager) ConfigureStages(set StageSet) {
	stages := []pipelineStage{
		{name: content.StageTranscription, handler: set.Transcription},
		{name: content.StageVectorization, handler: set.Vectorization},
		{name: content.StageSummarization, handler: set.Summarization},
		{name: content.StageFlashcardGeneration, handler: set.Flashcards},
		{name: content.StageQuizGeneration, handler: set.Quizzes, soft: true},
	}
	m.mu.Lock()
	m.stages = stages
	m.mu.Unlock()
}

func (m *Manager) stageList() []pipelineStage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stages
}
