package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(llmRequests, llmDuration) }

// LLM request outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeEmpty   = "empty"
)

var (
	llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_llm_requests_total",
			Help: "LLM generation calls per provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	llmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportbot_llm_request_duration_seconds",
			Help:    "LLM generation latency distribution.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"provider"},
	)
)

func ObserveLLM(provider, outcome string, elapsed time.Duration) {
	p := norm(provider)
	llmRequests.WithLabelValues(p, outcome).Inc()
	llmDuration.WithLabelValues(p).Observe(elapsed.Seconds())
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
