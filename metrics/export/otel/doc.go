// Package otel provides OpenTelemetry metric exporter bindings for bindflow
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// bindflow metric and Int64ObservableGauge per histogram bucket. A single
// callback reads [bindflow.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
