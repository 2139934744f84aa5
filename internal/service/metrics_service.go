package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/rc-quote-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	admissions      *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	mailDuration    prometheus.Histogram
	retentionRuns   *prometheus.CounterVec
	retentionFiles  *prometheus.CounterVec
	retentionBytes  *prometheus.CounterVec
	retentionErrors *prometheus.CounterVec
	lastRetention   prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	submissionCount      uint64
	blockedCount         uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_rate_limit_decisions_total",
		Help: "Rate limiter decisions by outcome",
	}, []string{"outcome"})

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_uploads_total",
		Help: "Uploaded files by validation outcome",
	}, []string{"outcome"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_submissions_total",
		Help: "Quote submissions by outcome",
	}, []string{"outcome"})

	mailDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rc_mail_send_duration_seconds",
		Help:    "Duration of mail transport calls",
		Buckets: prometheus.DefBuckets,
	})

	retentionRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_retention_runs_total",
		Help: "Retention runs by mode",
	}, []string{"mode"})

	retentionFiles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_retention_files_removed_total",
		Help: "Files removed by the retention engine",
	}, []string{"directory", "mode"})

	retentionBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_retention_bytes_freed_total",
		Help: "Bytes freed by the retention engine",
	}, []string{"directory", "mode"})

	retentionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_retention_errors_total",
		Help: "Errors recorded by the retention engine",
	}, []string{"directory"})

	lastRetention := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rc_retention_last_run_timestamp_seconds",
		Help: "Unix time of the last completed retention run",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, admissions, uploads, submissions, mailDuration,
		retentionRuns, retentionFiles, retentionBytes, retentionErrors, lastRetention, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		admissions:      admissions,
		uploads:         uploads,
		submissions:     submissions,
		mailDuration:    mailDuration,
		retentionRuns:   retentionRuns,
		retentionFiles:  retentionFiles,
		retentionBytes:  retentionBytes,
		retentionErrors: retentionErrors,
		lastRetention:   lastRetention,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile dumps every collector to path in the node_exporter textfile format.
func (m *MetricsService) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveAdmission counts a rate limiter decision.
func (m *MetricsService) ObserveAdmission(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
	if outcome == "blocked" {
		atomic.AddUint64(&m.blockedCount, 1)
	}
}

// ObserveUploads counts accepted and rejected files of one submission.
func (m *MetricsService) ObserveUploads(accepted, rejected int) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("accepted").Add(float64(accepted))
	m.uploads.WithLabelValues("rejected").Add(float64(rejected))
}

// ObserveSubmission counts a submission outcome.
func (m *MetricsService) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if outcome == "sent" {
		atomic.AddUint64(&m.submissionCount, 1)
	}
}

// ObserveMailSend records the duration of a transport call.
func (m *MetricsService) ObserveMailSend(duration time.Duration) {
	if m == nil {
		return
	}
	m.mailDuration.Observe(duration.Seconds())
}

// ObserveRetentionReport adds one directory report to the retention counters.
func (m *MetricsService) ObserveRetentionReport(report models.CleanupReport) {
	if m == nil {
		return
	}
	mode := string(report.Mode)
	m.retentionFiles.WithLabelValues(report.Name, mode).Add(float64(report.FilesRemoved))
	m.retentionBytes.WithLabelValues(report.Name, mode).Add(float64(report.BytesFreed))
	if len(report.Errors) > 0 {
		m.retentionErrors.WithLabelValues(report.Name).Add(float64(len(report.Errors)))
	}
}

// ObserveRetentionRun marks a finished run.
func (m *MetricsService) ObserveRetentionRun(mode models.RunMode, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.retentionRuns.WithLabelValues(string(mode)).Inc()
	m.lastRetention.Set(float64(finishedAt.Unix()))
}

// Snapshot returns aggregated metrics suitable for the JSON stats endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SubmissionsSent:          atomic.LoadUint64(&m.submissionCount),
		SubmissionsRateLimited:   atomic.LoadUint64(&m.blockedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
