// Package metrics collects run metrics and writes them for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trending-digest/artifact"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	ArtifactOutcomes *prometheus.CounterVec
	CommentNodes     *prometheus.CounterVec
	FetchFailures    *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RunsSkipped      prometheus.Counter
	LastSuccess      prometheus.Gauge
}

// New creates Metrics registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ArtifactOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trending_digest_artifact_outcomes_total",
				Help: "Artifact resolutions by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		CommentNodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trending_digest_comment_nodes_total",
				Help: "Comment items fetched, kept as candidates, and sampled",
			},
			[]string{"stage"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trending_digest_fetch_failures_total",
				Help: "Failed upstream fetches by source",
			},
			[]string{"source"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trending_digest_run_duration_seconds",
				Help:    "Duration of digest runs",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
			},
			[]string{"mode", "result"},
		),
		RunsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trending_digest_runs_skipped_total",
				Help: "Runs skipped because another run held the lock",
			},
		),
		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trending_digest_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}
	m.registry.MustRegister(
		m.ArtifactOutcomes,
		m.CommentNodes,
		m.FetchFailures,
		m.RunDuration,
		m.RunsSkipped,
		m.LastSuccess,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveArtifact counts a cache outcome. It matches artifact.Observer.
func (m *Metrics) ObserveArtifact(kind artifact.Kind, status artifact.Status) {
	m.ArtifactOutcomes.WithLabelValues(string(kind), status.String()).Inc()
}

// ObserveComments records one walk and sample.
func (m *Metrics) ObserveComments(fetched, kept, sampled int) {
	m.CommentNodes.WithLabelValues("fetched").Add(float64(fetched))
	m.CommentNodes.WithLabelValues("kept").Add(float64(kept))
	m.CommentNodes.WithLabelValues("sampled").Add(float64(sampled))
}

// FetchFailed counts a failed fetch from source.
func (m *Metrics) FetchFailed(source string) {
	m.FetchFailures.WithLabelValues(source).Inc()
}

// ObserveRun records a finished run started at start.
func (m *Metrics) ObserveRun(mode string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.LastSuccess.SetToCurrentTime()
	}
	m.RunDuration.WithLabelValues(mode, result).Observe(time.Since(start).Seconds())
}

// RunSkipped counts a run that found the lock taken.
func (m *Metrics) RunSkipped() {
	m.RunsSkipped.Inc()
}

// WriteTextfile writes all metrics to path atomically. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
