package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fleetarbiter"

// Metrics are registered on a private registry so several arbiters (tests,
// embedded use) never collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	commands      *prometheus.CounterVec
	sessions      prometheus.Gauge
	victories     *prometheus.CounterVec
	eventsDropped prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Commands processed, by command kind and result.",
		}, []string{"command", "result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Sessions currently held in memory.",
		}),
		victories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "victories_total",
			Help:      "Resolved victory claims, by outcome.",
		}, []string{"outcome"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dropped_total",
			Help:      "Events discarded because a subscriber fell behind.",
		}),
	}
	m.Registry.MustRegister(m.commands, m.sessions, m.victories, m.eventsDropped)
	return m
}
