package scoring

import (
	"time"

	"studyforge/internal/content"
)

// Change is the direction of a difficulty recommendation.
type Change string

const (
	ChangeRaise Change = "raise"
	ChangeHold  Change = "hold"
	ChangeLower Change = "lower"
)

const (
	raiseAt         = 85.0
	raiseFastAt     = 80.0
	fastAnswer      = 45 * time.Second
	lowerBelow      = 50.0
	borderlineBelow = 60.0
)

// Recommendation is the suggested next difficulty.
type Recommendation struct {
	Difficulty content.Difficulty
	Change     Change
	// Borderline marks a hold between the lowering and the soft lowering
	// thresholds.
	Borderline bool
}

// Recommend picks the next difficulty from a percentage score and the
// average time spent per question. The result is clamped to the ladder.
func Recommend(percentage float64, avgPerQuestion time.Duration, current content.Difficulty) Recommendation {
	idx := ladderIndex(current)
	switch {
	case percentage >= raiseAt, percentage >= raiseFastAt && avgPerQuestion > 0 && avgPerQuestion < fastAnswer:
		return step(idx, 1, ChangeRaise)
	case percentage < lowerBelow:
		return step(idx, -1, ChangeLower)
	default:
		return Recommendation{
			Difficulty: content.Difficulties[idx],
			Change:     ChangeHold,
			Borderline: percentage < borderlineBelow,
		}
	}
}

func step(idx, delta int, change Change) Recommendation {
	next := idx + delta
	if next < 0 || next >= len(content.Difficulties) {
		return Recommendation{Difficulty: content.Difficulties[idx], Change: ChangeHold}
	}
	return Recommendation{Difficulty: content.Difficulties[next], Change: change}
}

func ladderIndex(d content.Difficulty) int {
	for i, candidate := range content.Difficulties {
		if candidate == d {
			return i
		}
	}
	return 0
}
