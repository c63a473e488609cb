package stage

import (
	"context"

	"studyforge/internal/content"
)

// Progress reports a stage's completion percentage (0-100) with a short message.
type Progress func(percent int, message string)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Name() content.StageName
	// Prepare checks the artifacts the stage depends on before it is marked
	// processing.
	Prepare(context.Context, *content.Content) error
	Execute(context.Context, *content.Content, Progress) error
	HealthCheck(context.Context) Health
}
