package srs

import (
	"fmt"
	"math"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/services"
)

const (
	// MinEaseFactor is the SM-2 ease floor.
	MinEaseFactor = 1.3
	// PassingQuality is the lowest quality counted as a correct recall.
	PassingQuality = 3
	maxQuality     = 5
)

// Schedule returns the state after a review of the given quality (0-5) at now.
func Schedule(quality int, state content.SpacedRepetition, now time.Time) (content.SpacedRepetition, error) {
	if quality < 0 || quality > maxQuality {
		return state, services.Wrap(services.ErrValidation, "srs", "schedule",
			fmt.Sprintf("quality %d outside 0-%d", quality, maxQuality), nil)
	}
	ease := state.EaseFactor
	if ease <= 0 {
		ease = content.DefaultEaseFactor
	}

	next := state
	if quality < PassingQuality {
		next.Repetitions = 0
		next.IntervalDays = 1
	} else {
		switch state.Repetitions {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			interval := state.IntervalDays
			if interval <= 0 {
				interval = 1
			}
			next.IntervalDays = int(math.Round(float64(interval) * ease))
		}
		next.Repetitions = state.Repetitions + 1
	}

	miss := float64(maxQuality - quality)
	next.EaseFactor = math.Max(MinEaseFactor, ease+0.1-miss*(0.08+miss*0.02))

	y, m, d := now.Date()
	due := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, next.IntervalDays)
	reviewed := now
	next.NextReviewDate = &due
	next.LastReviewDate = &reviewed
	return next, nil
}
