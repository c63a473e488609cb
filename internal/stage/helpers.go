package stage

import (
	"fmt"

	"studyforge/internal/content"
	"studyforge/internal/services"
)

// NopProgress discards progress updates.
func NopProgress(int, string) {}

// Report calls p when it is set, clamping percent to 0-100.
func Report(p Progress, percent int, message string) {
	if p == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	p(percent, message)
}

// Scaled maps sub-task progress (done of total) onto the [from, to] band.
func Scaled(from, to, done, total int) int {
	if total <= 0 {
		return to
	}
	if done > total {
		done = total
	}
	return from + (to-from)*done/total
}

// MissingArtifact reports that an upstream artifact is absent. The message
// names the stage that produces it so the operator knows where to resume.
func MissingArtifact(stage content.StageName, artifact string, producer content.StageName) error {
	return services.Wrap(
		services.ErrValidation, string(stage), "load "+artifact,
		fmt.Sprintf("%s missing; resume from %s", artifact, producer), nil)
}
