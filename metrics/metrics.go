// Package metrics exposes Prometheus counters/gauges for the scheduler and
// the SLA checker (§4.10).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every counter/gauge the engine updates, grounded on the
// teacher's pattern of registering handlers against a single mux (see
// RegisterHTTPHandlers in processor/context-builder/http.go) generalized to
// Prometheus metric registration.
type Registry struct {
	reg *prometheus.Registry

	PollsTotal         prometheus.Counter
	ActionsPlanned     prometheus.Counter
	ActionsExecuted    prometheus.Counter
	ActionsFailed      prometheus.Counter
	LeasesExpiredTotal prometheus.Counter
	TasksRequeued      prometheus.Counter
	TasksPromoted      prometheus.Counter
	TasksDeadlettered  prometheus.Counter
	SLAViolationsTotal prometheus.Counter
	TasksInProgress    prometheus.Gauge
	TasksReady         prometheus.Gauge
	TasksBlocked       prometheus.Gauge
}

// NewRegistry builds and registers every metric against a fresh registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "poll_total", Help: "Total scheduler poll passes executed.",
		}),
		ActionsPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "actions_planned_total", Help: "Total actions planned across all polls.",
		}),
		ActionsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "actions_executed_total", Help: "Total dispatch actions executed.",
		}),
		ActionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "actions_failed_total", Help: "Total actions that failed during execution.",
		}),
		LeasesExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "leases_expired_total", Help: "Total leases reclaimed after expiry.",
		}),
		TasksRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "tasks_requeued_total", Help: "Total tasks requeued from blocked to ready.",
		}),
		TasksPromoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "tasks_promoted_total", Help: "Total tasks promoted from backlog to ready.",
		}),
		TasksDeadlettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "tasks_deadlettered_total", Help: "Total tasks moved to deadletter.",
		}),
		SLAViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aof", Name: "sla_violations_total", Help: "Total SLA violation alerts emitted.",
		}),
		TasksInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aof", Name: "tasks_in_progress", Help: "Current count of in-progress tasks.",
		}),
		TasksReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aof", Name: "tasks_ready", Help: "Current count of ready tasks.",
		}),
		TasksBlocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aof", Name: "tasks_blocked", Help: "Current count of blocked tasks.",
		}),
	}

	reg.MustRegister(
		r.PollsTotal, r.ActionsPlanned, r.ActionsExecuted, r.ActionsFailed,
		r.LeasesExpiredTotal, r.TasksRequeued, r.TasksPromoted, r.TasksDeadlettered,
		r.SLAViolationsTotal, r.TasksInProgress, r.TasksReady, r.TasksBlocked,
	)
	return r
}

// Registerer exposes the underlying prometheus.Registerer for HTTP handler
// construction (metrics/http.go) and tests that want to add custom
// collectors.
func (r *Registry) Registerer() *prometheus.Registry { return r.reg }
