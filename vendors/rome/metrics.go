package rome

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	commands     *prometheus.CounterVec
	pendingWait  prometheus.Histogram
	timeouts     *prometheus.CounterVec
	severeFaults *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rome",
				Name:      "commands_total",
				Help:      "Connection commands issued to a controller.",
			},
			[]string{"host", "op"},
		),
		pendingWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rome",
				Name:      "pending_wait_seconds",
				Help:      "Time until issued connection commands left the pending queue.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rome",
				Name:      "pending_timeouts_total",
				Help:      "Pending queue waits that hit the deadline.",
			},
			[]string{"host"},
		),
		severeFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rome",
				Name:      "severe_faults_total",
				Help:      "Severe failure markers detected in session output.",
			},
			[]string{"host"},
		),
	}
	reg.MustRegister(m.commands, m.pendingWait, m.timeouts, m.severeFaults)
	return m
}

func (m *Metrics) commandIssued(host string, op linkOp) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(host, op.String()).Inc()
}

func (m *Metrics) pendingCleared(d time.Duration) {
	if m == nil {
		return
	}
	m.pendingWait.Observe(d.Seconds())
}

func (m *Metrics) timedOut(host string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(host).Inc()
}

func (m *Metrics) severeFault(host string) {
	if m == nil {
		return
	}
	m.severeFaults.WithLabelValues(host).Inc()
}
