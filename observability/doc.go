// Package observability provides metrics extensions for claim. Both
// extensions implement the ext lifecycle hooks and count claims,
// contention, releases, sweeps and status transitions:
//
//   - MetricsExtension records through an OpenTelemetry meter
//   - PrometheusExtension records into a Prometheus registry and also
//     carries gauges fed from monitor snapshots
//
// For per-run tracing and metrics of the work done under a claim, see the
// middleware package: middleware.Tracing() and middleware.Metrics().
package observability
