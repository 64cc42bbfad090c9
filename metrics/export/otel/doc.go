// Package otel provides OpenTelemetry metric exporter bindings for goGraph counters and
// histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter per goGraph counter and one
// Int64ObservableGauge per histogram, observed once per bucket bound with the bound in
// the "le" attribute. A single callback reads [goGraph.App.MetricsSnapshot] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate App state.
package otel
