// Package prometheus provides a Prometheus collector for engine metrics.
//
// [NewExporter] accepts an [authkernel.Engine] and implements
// [prometheus.Collector]; [Exporter.Handler] mounts it on a private registry
// and serves the standard exposition format. Counter names are prefixed
// authkernel_*_total; the single histogram is
// authkernel_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry — callers either
//     mount the Handler or register the collector themselves.
//   - Mutate engine state.
package prometheus
