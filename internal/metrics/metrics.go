// Package metrics registers the prometheus collectors the control core
// updates as it provisions, monitors, and reconfigures connections. Serving
// them over HTTP is the external REST surface's job (out of scope, spec §1).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every gauge/counter the core touches.
type Collectors struct {
	ConnectionsByStatus *prometheus.GaugeVec
	Reconfigurations    *prometheus.CounterVec
	SlotsFree           *prometheus.GaugeVec
	SlotsOccupied       *prometheus.GaugeVec
	AgentsOnline        prometheus.Gauge
	BusSendLatency      *prometheus.HistogramVec
	BusSendFailures     *prometheus.CounterVec
	TelemetrySamples    prometheus.Counter
	DegradationEvents   *prometheus.CounterVec
}

// New constructs and registers the collectors against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// repeated construction in tests side-effect free.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ConnectionsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ipwdm",
			Subsystem: "connections",
			Name:      "by_status",
			Help:      "Current connection count by FSM status.",
		}, []string{"status"}),
		Reconfigurations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipwdm",
			Subsystem: "qot",
			Name:      "reconfigurations_total",
			Help:      "Total reconfiguration attempts by outcome.",
		}, []string{"outcome"}),
		SlotsFree: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ipwdm",
			Subsystem: "spectrum",
			Name:      "slots_free",
			Help:      "Free spectrum slots per link.",
		}, []string{"link"}),
		SlotsOccupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ipwdm",
			Subsystem: "spectrum",
			Name:      "slots_occupied",
			Help:      "Occupied spectrum slots per link.",
		}, []string{"link"}),
		AgentsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ipwdm",
			Subsystem: "agents",
			Name:      "online",
			Help:      "Agents considered online (heartbeat within the liveness window).",
		}),
		BusSendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ipwdm",
			Subsystem: "bus",
			Name:      "send_seconds",
			Help:      "Producer send confirmation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		BusSendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipwdm",
			Subsystem: "bus",
			Name:      "send_failures_total",
			Help:      "Producer send failures by topic.",
		}, []string{"topic"}),
		TelemetrySamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipwdm",
			Subsystem: "qot",
			Name:      "telemetry_samples_total",
			Help:      "Telemetry samples ingested by the QoT monitor.",
		}),
		DegradationEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipwdm",
			Subsystem: "qot",
			Name:      "degradation_events_total",
			Help:      "Degradation level transitions by new level.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		c.ConnectionsByStatus,
		c.Reconfigurations,
		c.SlotsFree,
		c.SlotsOccupied,
		c.AgentsOnline,
		c.BusSendLatency,
		c.BusSendFailures,
		c.TelemetrySamples,
		c.DegradationEvents,
	)

	return c
}
