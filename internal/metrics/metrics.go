// Package metrics holds the bot's Prometheus collectors. All methods are
// safe on a nil *Metrics so tests can skip them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Registrations committed to the ledger, by event
	Submitted *prometheus.CounterVec

	// Admin decisions by decision and result code ("ok" on success)
	Decisions *prometheus.CounterVec

	// Participant notifications that could not be delivered
	NotifyFailures prometheus.Counter

	// Form turns by step reached and outcome
	Turns *prometheus.CounterVec

	TurnLatency prometheus.Histogram

	LiveSessions    prometheus.Gauge
	SessionsEvicted prometheus.Counter
	EventsExpired   prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbot_registrations_submitted_total",
			Help: "Registrations committed as pending, by event",
		}, []string{"event_id"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbot_decisions_total",
			Help: "Admin approve/reject decisions by result",
		}, []string{"decision", "result"}),

		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eventbot_notification_failures_total",
			Help: "Decision notifications that failed to reach the participant",
		}),

		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbot_form_turns_total",
			Help: "Registration form turns by outcome",
		}, []string{"outcome"}),

		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventbot_form_turn_duration_seconds",
			Help:    "Duration of one registration form turn",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		LiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventbot_sessions_live",
			Help: "Registration forms currently in progress",
		}),

		SessionsEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "eventbot_sessions_evicted_total",
			Help: "Idle registration forms dropped by the janitor",
		}),

		EventsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "eventbot_events_expired_total",
			Help: "Events closed because their end time passed",
		}),
	}
}

func (m *Metrics) IncSubmitted(eventID string) {
	if m != nil {
		m.Submitted.WithLabelValues(eventID).Inc()
	}
}

func (m *Metrics) IncDecision(decision, result string) {
	if m != nil {
		m.Decisions.WithLabelValues(decision, result).Inc()
	}
}

func (m *Metrics) IncNotifyFailure() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}

// ObserveTurn records one form turn and how long it took.
func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m != nil {
		m.Turns.WithLabelValues(outcome).Inc()
		m.TurnLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) SetLiveSessions(n int) {
	if m != nil {
		m.LiveSessions.Set(float64(n))
	}
}

func (m *Metrics) AddEvicted(n int) {
	if m != nil && n > 0 {
		m.SessionsEvicted.Add(float64(n))
	}
}

func (m *Metrics) AddExpired(n int64) {
	if m != nil && n > 0 {
		m.EventsExpired.Add(float64(n))
	}
}
