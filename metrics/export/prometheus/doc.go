// Package prometheus renders passkey engine counters in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads [passkey.Engine.MetricsSnapshot] on every
// render; [PrometheusExporter.Handler] serves the output over HTTP.
//
// # What this package must NOT do
//
//   - Own an HTTP server — callers mount the handler.
//   - Mutate engine state.
package prometheus
