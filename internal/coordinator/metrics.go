package coordinator

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/playperu/tasting/internal/tasting"
)

// Metrics groups the coordinator's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	commands       *prometheus.CounterVec
	events         *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	timerFires     *prometheus.CounterVec
	sessionsLoaded prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasting_commands_total",
			Help: "Session commands by action and outcome.",
		}, []string{"action", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasting_events_published_total",
			Help: "Events handed to the broadcast collaborator.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasting_events_dropped_total",
			Help: "Events dropped because the session outbox was full.",
		}, []string{"event"}),
		timerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasting_timer_fires_total",
			Help: "Phase timer fires by outcome.",
		}, []string{"outcome"}),
		sessionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tasting_sessions_loaded",
			Help: "Sessions held in memory.",
		}),
	}
	reg.MustRegister(m.commands, m.events, m.dropped, m.timerFires, m.sessionsLoaded)
	return m
}

func (m *Metrics) command(action Action, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(string(action), outcome(err)).Inc()
}

func (m *Metrics) published(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) droppedEvent(event string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(event).Inc()
}

func (m *Metrics) timerFired(outcome string) {
	if m == nil {
		return
	}
	m.timerFires.WithLabelValues(outcome).Inc()
}

func (m *Metrics) sessionLoaded() {
	if m == nil {
		return
	}
	m.sessionsLoaded.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tasting.ErrStaleState):
		return "stale"
	case errors.Is(err, tasting.ErrForbidden):
		return "forbidden"
	case errors.Is(err, tasting.ErrStorageUnavailable):
		return "unavailable"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "rejected"
	}
}
