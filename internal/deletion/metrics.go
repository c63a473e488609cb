package deletion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels a finished deletion operation.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeAborted      Outcome = "aborted"
	OutcomeInconsistent Outcome = "inconsistent"
	OutcomeSoftDeleted  Outcome = "soft_deleted"
	OutcomeRestored     Outcome = "restored"
)

var deletionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "studyforge",
	Subsystem: "deletion",
	Name:      "outcomes_total",
	Help:      "Deletion operations by outcome",
}, []string{"outcome"})

func recordOutcome(outcome Outcome) {
	deletionOutcomes.WithLabelValues(string(outcome)).Inc()
}
