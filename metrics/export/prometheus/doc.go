// Package prometheus provides Prometheus collectors for bindflow metrics.
//
// [NewPrometheusExporter] accepts a [bindflow.Engine] and exposes an
// [http.Handler] that renders all bindflow counters and histograms in
// Prometheus text exposition format. Counter names are prefixed
// bindflow_*_total; the single histogram is bindflow_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
