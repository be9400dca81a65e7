package broadcast

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks subscriber churn. A nil *Metrics records nothing.
type Metrics struct {
	subscribers     prometheus.Gauge
	slowSubscribers prometheus.Counter
	resyncs         prometheus.Counter
	relayed         prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tasting_subscribers",
			Help: "Connected event subscribers.",
		}),
		slowSubscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasting_slow_subscribers_total",
			Help: "Subscribers disconnected because their buffer was full.",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasting_resynced_subscribers_total",
			Help: "Subscribers disconnected because events may have been lost.",
		}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasting_relayed_events_total",
			Help: "Events received from the Redis relay.",
		}),
	}
	reg.MustRegister(m.subscribers, m.slowSubscribers, m.resyncs, m.relayed)
	return m
}

func (m *Metrics) subscribed() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *Metrics) unsubscribed() {
	if m != nil {
		m.subscribers.Dec()
	}
}

func (m *Metrics) slow() {
	if m != nil {
		m.slowSubscribers.Inc()
	}
}

func (m *Metrics) resynced() {
	if m != nil {
		m.resyncs.Inc()
	}
}

func (m *Metrics) relay() {
	if m != nil {
		m.relayed.Inc()
	}
}
