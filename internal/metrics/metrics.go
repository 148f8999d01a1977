// Package metrics exposes Prometheus counters and histograms for NaijaCare.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "naijacare"

// Metrics records routing, gateway, delivery and audit activity.
type Metrics struct {
	routedTotal     *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec
	gatewayTotal    *prometheus.CounterVec
	gatewayLatency  prometheus.Histogram
	outboundTotal   *prometheus.CounterVec
	auditFailures   prometheus.Counter
	hospitalRecords prometheus.Gauge
}

// New registers the NaijaCare collectors with reg, or with the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		routedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Inbound messages by classification outcome",
		}, []string{"outcome"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "commands_total",
			Help:      "Slash commands handled",
		}, []string{"command"}),
		gatewayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Language model requests by result",
		}, []string{"result"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Latency of language model requests",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Replies sent to users by status",
		}, []string{"status"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit entries that could not be written",
		}),
		hospitalRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hospital",
			Name:      "directory_records",
			Help:      "Records loaded into the hospital directory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.routedTotal, m.commandsTotal, m.gatewayTotal, m.gatewayLatency, m.outboundTotal, m.auditFailures, m.hospitalRecords)
	return m
}

// ObserveOutcome counts one routed message.
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.routedTotal.WithLabelValues(outcome).Inc()
}

// ObserveCommand counts one handled slash command.
func (m *Metrics) ObserveCommand(command string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command).Inc()
}

// ObserveGateway records the result and duration of one gateway call.
func (m *Metrics) ObserveGateway(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayTotal.WithLabelValues(result).Inc()
	m.gatewayLatency.Observe(d.Seconds())
}

// ObserveOutbound counts one reply delivery attempt.
func (m *Metrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

// IncAuditFailure counts one swallowed audit write error.
func (m *Metrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// SetHospitalRecords records the size of the loaded directory.
func (m *Metrics) SetHospitalRecords(n int) {
	if m == nil {
		return
	}
	m.hospitalRecords.Set(float64(n))
}
