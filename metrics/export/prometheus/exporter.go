package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	goGraph "github.com/MrEthical07/goGraph"
	"github.com/MrEthical07/goGraph/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goGraph.MetricsSnapshot
	AuditDropped() uint64
}

type describedCounter struct {
	id   goGraph.MetricID
	desc *prometheus.Desc
}

type describedHistogram struct {
	id   goGraph.MetricID
	desc *prometheus.Desc
}

// Collector is a prometheus.Collector reading an App snapshot on every scrape.
type Collector struct {
	source       metricsSource
	counters     []describedCounter
	histograms   []describedHistogram
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for app.
func NewCollector(app *goGraph.App) *Collector {
	return NewCollectorFromSource(app)
}

// NewCollectorFromSource returns a Collector for a custom source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]describedCounter, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]describedHistogram, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, describedCounter{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, describedHistogram{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.auditDropped
}

// Collect implements prometheus.Collector. Nothing is emitted while metrics are
// disabled and no audit event was dropped.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snapshot.Counters[d.id]))
	}

	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// snapshots carry no sum
		ch <- prometheus.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(dropped))
}

// PrometheusExporter serves an App's metrics from a private registry.
type PrometheusExporter struct {
	collector *Collector
	registry  *prometheus.Registry
}

// NewPrometheusExporter creates an exporter reading from app.
func NewPrometheusExporter(app *goGraph.App) *PrometheusExporter {
	return NewPrometheusExporterFromSource(app)
}

// NewPrometheusExporterFromSource creates an exporter reading from source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	c := NewCollectorFromSource(source)
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return &PrometheusExporter{collector: c, registry: reg}
}

// Collector returns the underlying collector for registration elsewhere.
func (p *PrometheusExporter) Collector() *Collector { return p.collector }

// Registry returns the private registry.
func (p *PrometheusExporter) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
