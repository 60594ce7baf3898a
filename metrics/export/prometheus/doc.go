// Package prometheus exposes authlife metrics as a prometheus.Collector.
//
// [NewPrometheusExporter] reads [authlife.Engine.MetricsSnapshot] on every
// scrape. Counter names are prefixed authlife_*_total; the single histogram
// is authlife_session_lookup_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. [Exporter.Handler]
//     serves a private registry; callers may also register the exporter
//     themselves.
//   - Mutate engine state.
package prometheus
