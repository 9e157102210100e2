package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(sessionsCreated, asksTotal, faqEntries) }

var (
	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportbot_sessions_created_total",
			Help: "Support sessions created.",
		},
	)

	asksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_asks_total",
			Help: "Answered customer questions by escalation outcome.",
		},
		[]string{"escalated"},
	)

	faqEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportbot_faq_entries",
			Help: "FAQ entries loaded into the knowledge base.",
		},
	)
)

func SessionCreated() { sessionsCreated.Inc() }

func AskAnswered(escalated bool) {
	asksTotal.WithLabelValues(strconv.FormatBool(escalated)).Inc()
}

func SetFAQEntries(n int) { faqEntries.Set(float64(n)) }
