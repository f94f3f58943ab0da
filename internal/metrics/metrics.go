// Package metrics exposes Prometheus counters for the monitor
package metrics

import (
	"net/http"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeStale    = "stale"
)

var (
	classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watermon",
		Name:      "classifications_total",
		Help:      "Stored readings (saves, registrations and refreshes), by safety level.",
	}, []string{"level"})

	predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watermon",
		Name:      "risk_predictions_total",
		Help:      "Risk narrative requests, by outcome.",
	}, []string{"outcome"})

	predictionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "watermon",
		Name:      "risk_prediction_seconds",
		Help:      "Latency of risk narrative requests.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	refreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watermon",
		Name:      "simulated_refreshes_total",
		Help:      "Simulated sensor refreshes applied.",
	})
)

// ObserveClassification counts the level of one stored reading
func ObserveClassification(level entities.SafetyLevel) {
	classifications.WithLabelValues(level.String()).Inc()
}

// ObservePrediction counts a risk narrative outcome and its latency in seconds
func ObservePrediction(outcome string, seconds float64) {
	predictions.WithLabelValues(outcome).Inc()
	if outcome != OutcomeStale {
		predictionLatency.Observe(seconds)
	}
}

// ObserveRefresh counts a simulated refresh
func ObserveRefresh() {
	refreshes.Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
