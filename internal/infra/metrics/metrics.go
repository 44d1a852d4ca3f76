// Package metrics exposes Prometheus collectors for the analysis service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

var (
	AnalysesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cam_analyses_submitted_total",
			Help: "Analyses accepted for processing",
		},
	)

	AnalysesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cam_analyses_finished_total",
			Help: "Analyses that reached a terminal status",
		},
		[]string{"format", "status", "kind"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cam_pipeline_duration_seconds",
			Help:    "Time from processing start to a terminal status",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"format", "status"},
	)

	IssuesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cam_issues_total",
			Help: "Rule engine findings by type and severity",
		},
		[]string{"type", "severity"},
	)

	ParseWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cam_parse_warnings_total",
			Help: "Warnings recorded while parsing design files",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cam_queue_depth",
			Help: "Analyses waiting for a worker",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cam_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cam_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Recorder feeds service events into the collectors above
type Recorder struct{}

func (Recorder) Submitted() { AnalysesSubmitted.Inc() }

func (Recorder) Finished(format design.Format, status analysis.Status, kind analysis.Kind, d time.Duration) {
	f := string(format)
	if f == "" {
		f = "unknown"
	}
	AnalysesFinished.WithLabelValues(f, string(status), string(kind)).Inc()
	PipelineDuration.WithLabelValues(f, string(status)).Observe(d.Seconds())
}

func (Recorder) Issues(issues []camrules.Issue) {
	for _, is := range issues {
		IssuesFound.WithLabelValues(string(is.Type), string(is.Severity)).Inc()
	}
}

func (Recorder) Warnings(n int) { ParseWarnings.Add(float64(n)) }

func (Recorder) QueueDepth(n int) { QueueDepth.Set(float64(n)) }
