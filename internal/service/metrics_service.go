package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-registration-api/pkg/jobs"
)

// Registration outcomes recorded by the step counter.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	stepTotal       *prometheus.CounterVec
	submissionTotal *prometheus.CounterVec
	submitDuration  prometheus.Histogram
	lookupFailures  *prometheus.CounterVec
	approvalTotal   *prometheus.CounterVec
	jobTotal        *prometheus.CounterVec
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

	stepTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_step_total",
		Help: "Registration wizard operations by step and outcome",
	}, []string{"step", "outcome"})

	submissionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_submissions_total",
		Help: "Final registration submissions by outcome",
	}, []string{"outcome"})

	submitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "registration_submission_duration_seconds",
		Help:    "Time spent writing a registration to the stores",
		Buckets: prometheus.DefBuckets,
	})

	lookupFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_uniqueness_lookup_failures_total",
		Help: "Uniqueness lookups that failed and were treated as passing",
	}, []string{"check"})

	approvalTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_approvals_total",
		Help: "Student approval decisions",
	}, []string{"decision"})

	jobTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_jobs_total",
		Help: "Notification jobs by type and final outcome",
	}, []string{"type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, stepTotal, submissionTotal, submitDuration, lookupFailures, approvalTotal, jobTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		stepTotal:       stepTotal,
		submissionTotal: submissionTotal,
		submitDuration:  submitDuration,
		lookupFailures:  lookupFailures,
		approvalTotal:   approvalTotal,
		jobTotal:        jobTotal,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveStep counts a wizard operation on step.
func (m *MetricsService) ObserveStep(step, outcome string) {
	if m == nil {
		return
	}
	m.stepTotal.WithLabelValues(step, outcome).Inc()
}

// ObserveSubmission records the result and duration of a final submission.
func (m *MetricsService) ObserveSubmission(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.submissionTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.submitDuration.Observe(duration.Seconds())
	}
}

// RecordLookupFailure counts a uniqueness lookup that failed open.
func (m *MetricsService) RecordLookupFailure(check string) {
	if m == nil {
		return
	}
	m.lookupFailures.WithLabelValues(check).Inc()
}

// RecordApproval counts an admin decision.
func (m *MetricsService) RecordApproval(decision string) {
	if m == nil {
		return
	}
	m.approvalTotal.WithLabelValues(decision).Inc()
}

// ObserveJob records the final outcome of a background job. Its signature
// matches jobs.Observer.
func (m *MetricsService) ObserveJob(job jobs.Job, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeAccepted
	if err != nil {
		outcome = OutcomeFailed
	}
	m.jobTotal.WithLabelValues(job.Type, outcome).Inc()
}
