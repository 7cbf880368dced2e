// Package metrics instruments the orchestrator itself with Prometheus
// gauges/counters, grounded on the teacher's internal/database/postgres/metrics.go
// and internal/metrics packages. This is ambient service observability, not
// the cluster metrics collection spec.md §1 explicitly puts out of scope
// (SPEC_FULL.md §3).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every gauge/counter the coordinator updates.
type Metrics struct {
	ActiveSessions       prometheus.Gauge
	ActiveDatabases      prometheus.Gauge
	PortOffsetsInUse     prometheus.Gauge
	SupervisorEscalations prometheus.Counter
	SessionsExpired      prometheus.Counter
	BackgroundJobFailures prometheus.Counter
}

// New registers and returns the metric set against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demo_orchestrator",
			Name:      "active_sessions",
			Help:      "Number of sessions currently tracked in memory.",
		}),
		ActiveDatabases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demo_orchestrator",
			Name:      "active_databases",
			Help:      "Number of sessions with a database set or being created.",
		}),
		PortOffsetsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demo_orchestrator",
			Name:      "port_offsets_in_use",
			Help:      "Number of loadgen port offsets currently allocated.",
		}),
		SupervisorEscalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "demo_orchestrator",
			Name:      "supervisor_sigkill_escalations_total",
			Help:      "Number of times the process supervisor escalated to SIGKILL.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "demo_orchestrator",
			Name:      "sessions_expired_total",
			Help:      "Number of sessions reclaimed by the maintenance loop after TTL expiry.",
		}),
		BackgroundJobFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "demo_orchestrator",
			Name:      "background_job_failures_total",
			Help:      "Number of background create-database/run-loadgen jobs that ended in an external-failure.",
		}),
	}
	reg.MustRegister(
		m.ActiveSessions,
		m.ActiveDatabases,
		m.PortOffsetsInUse,
		m.SupervisorEscalations,
		m.SessionsExpired,
		m.BackgroundJobFailures,
	)
	return m
}
