// Package prometheus exposes goGraph metrics through prometheus/client_golang.
//
// [Collector] implements prometheus.Collector over [goGraph.App.MetricsSnapshot] and can
// be registered with any registry. [PrometheusExporter] wraps it in a private registry
// and serves it over HTTP. Counter names are prefixed gograph_*_total; the single
// histogram is gograph_api_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate App state.
package prometheus
