// Package metrics exposes the Prometheus instrumentation surface for a
// running Supervisor and Fork Detector: connected-peer gauges, per-Event
// counters, and fork-detection outcome counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters/gauges a caller registers once per process
// and then updates from p2p.Event and forkdetector.ForkDetection values.
type Metrics struct {
	ConnectedPeers prometheus.Gauge
	UpgradedPeers  prometheus.Gauge

	EventsTotal *prometheus.CounterVec

	ForksDetectedTotal *prometheus.CounterVec
}

// New constructs a Metrics bundle with the given namespace, unregistered.
func New(namespace string) *Metrics {
	return &Metrics{
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "connected_peers",
			Help:      "Number of Connections currently pending upgrade.",
		}),
		UpgradedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "upgraded_peers",
			Help:      "Number of Peers currently upgraded and running.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "events_total",
			Help:      "Total Events emitted by the Supervisor, by kind.",
		}, []string{"kind"}),
		ForksDetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forkdetector",
			Name:      "forks_detected_total",
			Help:      "Total forks detected, by classification.",
		}, []string{"kind"}),
	}
}

// Collectors returns every metric for registration with a
// prometheus.Registerer.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectedPeers,
		m.UpgradedPeers,
		m.EventsTotal,
		m.ForksDetectedTotal,
	}
}

// ObserveEventKind increments the events-total counter for kind (e.g.
// "Connected", "Upgraded", "Disconnected").
func (m *Metrics) ObserveEventKind(kind string) {
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// ObserveForkKind increments the forks-detected counter for kind (e.g.
// "Forked", "Faulty", "Timeout").
func (m *Metrics) ObserveForkKind(kind string) {
	m.ForksDetectedTotal.WithLabelValues(kind).Inc()
}
