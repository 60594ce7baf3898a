// Package otel binds authlife counters and histograms to OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter. Each
// latency histogram becomes a "<name>_bucket" gauge carrying an "le"
// attribute plus a "<name>_count" gauge. One callback reads
// [authlife.Engine.MetricsSnapshot] per collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
