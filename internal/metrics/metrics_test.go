package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordWebhook("vapi", "call-started")
	m.RecordWebhook("vapi", "call-started")
	m.RecordJob("webhooks", "webhook.ingest", "ok", time.Millisecond)
	m.RecordLeadWrite("created")

	if got := testutil.ToFloat64(m.WebhooksReceived.WithLabelValues("vapi", "call-started")); got != 2 {
		t.Fatalf("expected 2 webhooks, got %v", got)
	}
	if got := testutil.ToFloat64(m.JobResults.WithLabelValues("webhooks", "webhook.ingest", "ok")); got != 1 {
		t.Fatalf("expected 1 job, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordWebhook("vapi", "x")
	m.RecordTranscriptPoll("found")
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/v1/calls/:call_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/calls/abc", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/calls/:call_id", "200")); got != 1 {
		t.Fatalf("expected route-pattern label, got %v", got)
	}
}
