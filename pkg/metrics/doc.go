/*
Package metrics provides Prometheus metrics collection and exposition
for the coordinator and datanode processes.

Gauges and counters are registered at package init via prometheus's
default registry and exposed by Handler(), which the coordinator's
control plane mounts under /metrics; cmd/datanode serves no metrics
endpoint. Reconciliation and balancer cycles use the Timer helper to
record histogram observations without repeating time.Since bookkeeping
at each call site; placement latency is not recorded.
*/
package metrics
