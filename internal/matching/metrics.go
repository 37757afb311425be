package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	// rankTotal counts Rank calls by the source that produced the list.
	// Labels: "provider", "fallback", "error"
	rankTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_rank_total",
		Help: "Total ranking requests by result source",
	}, []string{"source"})

	rankDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matching_rank_duration_seconds",
		Help:    "Ranking duration by result source",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	providerAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_provider_attempts_total",
		Help: "Scoring provider attempts by outcome",
	}, []string{"result"})

	providerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_provider_duration_seconds",
		Help:    "Scoring provider call duration",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
	})
)

func tracer() trace.Tracer {
	return otel.Tracer("github.com/generations-connect/connect-server-go/internal/matching")
}
