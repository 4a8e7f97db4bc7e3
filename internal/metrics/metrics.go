package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
// All Record methods are safe on a nil *Metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WebhooksReceived *prometheus.CounterVec
	WebhookOutcomes  *prometheus.CounterVec
	JobResults       *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	ExtractionSource *prometheus.CounterVec
	LeadWrites       *prometheus.CounterVec
	TranscriptPolls  *prometheus.CounterVec
}

// New registers every collector on reg (prometheus.DefaultRegisterer in main,
// a fresh registry in tests).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WebhooksReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhooks_received_total",
				Help: "Webhooks accepted at the HTTP boundary",
			},
			[]string{"provider", "type"},
		),
		WebhookOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_outcomes_total",
				Help: "Webhook processing outcomes",
			},
			[]string{"outcome"}, // processed, duplicate, failed, rejected
		),
		JobResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_total",
				Help: "Background job results",
			},
			[]string{"queue", "kind", "result"}, // ok, retry, dead
		),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "job_duration_seconds",
				Help:    "Background job run time",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"queue", "kind"},
		),
		ExtractionSource: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractions_total",
				Help: "Extractions by source",
			},
			[]string{"source"}, // ai, heuristic
		),
		LeadWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_writes_total",
				Help: "Lead materializer results",
			},
			[]string{"result"}, // created, updated, skipped, failed
		),
		TranscriptPolls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcript_polls_total",
				Help: "Transcript poll attempts",
			},
			[]string{"result"}, // found, retry, exhausted, error
		),
	}
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordWebhook(provider, eventType string) {
	if m == nil {
		return
	}
	m.WebhooksReceived.WithLabelValues(provider, eventType).Inc()
}

func (m *Metrics) RecordWebhookOutcome(outcome string) {
	if m == nil {
		return
	}
	m.WebhookOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordJob(queue, kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobResults.WithLabelValues(queue, kind, result).Inc()
	m.JobDuration.WithLabelValues(queue, kind).Observe(d.Seconds())
}

func (m *Metrics) RecordExtraction(source string) {
	if m == nil {
		return
	}
	m.ExtractionSource.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordLeadWrite(result string) {
	if m == nil {
		return
	}
	m.LeadWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTranscriptPoll(result string) {
	if m == nil {
		return
	}
	m.TranscriptPolls.WithLabelValues(result).Inc()
}
