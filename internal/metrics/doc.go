// Package metrics exposes the supervisor's operational counters over an
// optional HTTP diagnostics endpoint (/metrics in Prometheus format,
// /healthz for liveness). Collectors live on a private registry created
// per Metrics value.
package metrics
