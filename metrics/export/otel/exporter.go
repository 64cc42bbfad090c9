package otel

import (
	"context"
	"errors"
	"fmt"

	goGraph "github.com/MrEthical07/goGraph"
	"github.com/MrEthical07/goGraph/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goGraph.MetricsSnapshot
	AuditDropped() uint64
}

// BoundKey is the attribute carrying a histogram bucket's upper bound.
const BoundKey = "le"

// bucketBounds holds one observe option per entry of internaldefs.HistogramBounds.
var bucketBounds = func() []metric.ObserveOption {
	out := make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		out[i] = metric.WithAttributes(attribute.String(BoundKey, le))
	}
	return out
}()

// OTelExporter publishes an App's counters through OpenTelemetry observable
// instruments. Every collection reads a single snapshot.
//
// A latency histogram becomes one "<name>_bucket" gauge observed once per bound,
// with cumulative counts and the bound in the "le" attribute.
type OTelExporter struct {
	source       metricsSource
	counters     map[goGraph.MetricID]metric.Int64ObservableCounter
	buckets      map[goGraph.MetricID]metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
	registration metric.Registration
}

// NewOTelExporter registers observable instruments for app on meter.
func NewOTelExporter(meter metric.Meter, app *goGraph.App) (*OTelExporter, error) {
	if app == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, app)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[goGraph.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		buckets:  make(map[goGraph.MetricID]metric.Int64ObservableGauge, len(internaldefs.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)+1)

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		name := def.Name + "_bucket"
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: gauge %s: %w", name, err)
		}
		e.buckets[def.ID] = g
		observables = append(observables, g)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("otel: counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for id, g := range e.buckets {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[id]))
		for i, n := range cumulative {
			o.ObserveInt64(g, int64(n), bucketBounds[i])
		}
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
