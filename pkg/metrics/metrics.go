// Package metrics exposes engine metrics in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted  prometheus.Counter
	JobsRejected   *prometheus.CounterVec
	JobsFinished   *prometheus.CounterVec
	RenderDuration prometheus.Histogram
	FilesSwept     prometheus.Counter
}

// New creates the collectors and registers them along with queue and
// store gauges read on scrape.
func New(queueLen func() int, jobsTotal func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportd_jobs_submitted_total",
			Help: "Total number of jobs accepted by the submission gateway",
		}),
		JobsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_jobs_rejected_total",
			Help: "Total number of submissions rejected, by reason",
		}, []string{"reason"}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal state, by status",
		}, []string{"status"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportd_render_duration_seconds",
			Help:    "Wall-clock duration of report generator executions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		FilesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportd_files_swept_total",
			Help: "Total number of output files deleted by retention sweeps",
		}),
	}

	reg.MustRegister(m.JobsSubmitted, m.JobsRejected, m.JobsFinished, m.RenderDuration, m.FilesSwept)

	if queueLen != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "reportd_queue_length",
			Help: "Current number of queued job ids",
		}, func() float64 { return float64(queueLen()) }))
	}
	if jobsTotal != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "reportd_jobs_total",
			Help: "Current number of job records in the store",
		}, func() float64 { return float64(jobsTotal()) }))
	}

	return m
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
