/*
Package metrics registers and exposes the Prometheus instrumentation for
the autoscaler control core: instance counts by type and status,
scheduling-cycle and reconciliation-cycle latency, launch/terminate
request counters, infeasible-request gauges, and Raft leadership/log
gauges for the Instance Manager's replicated log.

Metrics are package-level vars registered at init via
prometheus.MustRegister; components obtain a Timer from NewTimer and
call ObserveDuration/ObserveDurationVec when an operation completes.

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

health.go holds a small HealthChecker used by the CLI's /health and
/ready endpoints, independent of the Prometheus registry.
*/
package metrics
