package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess          = "success"
	outcomeTransient        = "transient"
	outcomeModelUnavailable = "model_unavailable"
	outcomeFatal            = "fatal"
	outcomeQuota            = "quota"
	outcomeCanceled         = "canceled"
)

var (
	// generationAttempts counts individual backend attempts.
	// Labels: generator, outcome (success, transient, model_unavailable, fatal, quota, canceled)
	generationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyforge",
		Subsystem: "generation",
		Name:      "attempts_total",
		Help:      "Generation attempts by generator and outcome",
	}, []string{"generator", "outcome"})

	// generationFallbacks counts moves along the fallback chain.
	generationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyforge",
		Subsystem: "generation",
		Name:      "fallbacks_total",
		Help:      "Fallbacks from one generator to the next",
	}, []string{"from", "to"})

	generationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studyforge",
		Subsystem: "generation",
		Name:      "latency_seconds",
		Help:      "Latency of individual generation attempts",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"generator"})

	generationCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studyforge",
		Subsystem: "generation",
		Name:      "coalesced_total",
		Help:      "Requests served by another caller's in-flight generation",
	})
)

func recordAttempt(generator, outcome string, seconds float64) {
	generationAttempts.WithLabelValues(generator, outcome).Inc()
	generationLatency.WithLabelValues(generator).Observe(seconds)
}

func recordFallback(from, to string) {
	generationFallbacks.WithLabelValues(from, to).Inc()
}
