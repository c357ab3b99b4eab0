// Package metrics exposes Prometheus collectors for the orchestration service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creator_jobs_total",
			Help: "Total number of submitted jobs, labeled by final status.",
		},
		[]string{"status"},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creator_batches_total",
			Help: "Total number of executed batches, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	notesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creator_notes_total",
			Help: "Total number of notes ingested, labeled by accepted or duplicate.",
		},
		[]string{"result"},
	)

	jobRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creator_job_running",
			Help: "1 while an orchestration job holds the guard.",
		},
	)

	jobDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "creator_job_duration_seconds",
			Help:    "Histogram of end-to-end job durations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	accountChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creator_account_checks_total",
			Help: "Total number of login checks, labeled by result.",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records a job reaching its final status.
func ObserveJob(status string, duration time.Duration) {
	jobsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		jobDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveBatch records one batch outcome ("ok", "partial" or "error").
func ObserveBatch(outcome string) {
	batchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotes records accepted and duplicate note counts from one ingest.
func ObserveNotes(accepted, duplicates int) {
	if accepted > 0 {
		notesTotal.WithLabelValues("accepted").Add(float64(accepted))
	}
	if duplicates > 0 {
		notesTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	}
}

// SetJobRunning flips the running gauge.
func SetJobRunning(running bool) {
	if running {
		jobRunning.Set(1)
		return
	}
	jobRunning.Set(0)
}

// ObserveAccountCheck records a login check result.
func ObserveAccountCheck(valid bool) {
	accountChecksTotal.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
