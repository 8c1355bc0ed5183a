// Package metrics exposes extraction progress and results as Prometheus
// metrics on a private registry, written out in the node_exporter textfile
// format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OpenTraceLab/OpenTraceRCX/pkg/rcx"
)

// Collector implements rcx.Reporter and records run statistics
type Collector struct {
	reg *prometheus.Registry

	progress   *prometheus.GaugeVec
	runs       prometheus.Counter
	duration   prometheus.Histogram
	nets       prometheus.Gauge
	wires      prometheus.Gauge
	graph      *prometheus.GaugeVec
	steps      *prometheus.GaugeVec
	peak       *prometheus.GaugeVec
	evicted    *prometheus.GaugeVec
	violations *prometheus.GaugeVec
	builder    *prometheus.GaugeVec
	length     *prometheus.GaugeVec
}

// New creates a collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		progress: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_progress_percent",
			Help: "Share of wires indexed so far, over both passes",
		}, []string{"pass"}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "rcx_runs_total",
			Help: "Completed extraction runs",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rcx_run_duration_seconds",
			Help:    "Extraction run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}),
		nets: f.NewGauge(prometheus.GaugeOpts{
			Name: "rcx_nets",
			Help: "Signal nets extracted by the last run",
		}),
		wires: f.NewGauge(prometheus.GaugeOpts{
			Name: "rcx_wires",
			Help: "Wires fed to each pass of the last run",
		}),
		graph: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_graph_elements",
			Help: "Elements of the parasitic network after the last run",
		}, []string{"kind"}),
		steps: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_pass_steps",
			Help: "Window steps per pass",
		}, []string{"pass"}),
		peak: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_pass_peak_resident",
			Help: "Peak resident entries per pass",
		}, []string{"pass", "store"}),
		evicted: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_pass_evicted",
			Help: "Entries evicted per pass",
		}, []string{"pass"}),
		violations: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_pass_eviction_violations",
			Help: "Queries that reached evicted index range",
		}, []string{"pass"}),
		builder: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_builder_events",
			Help: "Graph builder activity of the last run",
		}, []string{"event"}),
		length: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rcx_pass_length_microns",
			Help: "Source length covered by coplanar neighbours or charged open",
		}, []string{"pass", "kind"}),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Progress records a progress report.
func (c *Collector) Progress(p rcx.Progress) {
	c.progress.WithLabelValues(p.Pass.String()).Set(float64(p.Percent))
}

// ObserveRun records the statistics of a finished run.
func (c *Collector) ObserveRun(st rcx.Stats) {
	c.runs.Inc()
	c.duration.Observe(st.Duration.Seconds())
	c.nets.Set(float64(st.Nets))
	c.wires.Set(float64(st.Wires))

	c.graph.WithLabelValues("node").Set(float64(st.Graph.Nodes))
	c.graph.WithLabelValues("rseg").Set(float64(st.Graph.RSegs))
	c.graph.WithLabelValues("ccseg").Set(float64(st.Graph.CCSegs))

	c.builder.WithLabelValues("segment").Set(float64(st.Builder.Segments))
	c.builder.WithLabelValues("coupling").Set(float64(st.Builder.Couplings))
	c.builder.WithLabelValues("folded").Set(float64(st.Builder.Folded))
	c.builder.WithLabelValues("filled").Set(float64(st.Builder.Filled))
	c.builder.WithLabelValues("skipped").Set(float64(st.Builder.Skipped))

	for _, p := range st.Passes {
		pass := p.Dir.String()
		c.steps.WithLabelValues(pass).Set(float64(p.Steps))
		c.peak.WithLabelValues(pass, "index").Set(float64(p.PeakIndex))
		c.peak.WithLabelValues(pass, "context").Set(float64(p.PeakContext))
		c.evicted.WithLabelValues(pass).Set(float64(p.Evicted))
		c.violations.WithLabelValues(pass).Set(float64(p.Violations))
		c.length.WithLabelValues(pass, "covered").Set(p.Measure.Covered)
		c.length.WithLabelValues(pass, "open").Set(p.Measure.Open)
	}
}

// WriteTextfile writes every metric to path for a textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
