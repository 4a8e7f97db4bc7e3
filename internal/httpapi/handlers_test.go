package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-platform/internal/audit"
	"voice-platform/internal/auth"
	"voice-platform/internal/calls"
	"voice-platform/internal/events"
	"voice-platform/internal/jobs"
	"voice-platform/internal/leads"
	"voice-platform/internal/outbound"
	"voice-platform/internal/rbac"
	"voice-platform/internal/reporting"
	"voice-platform/internal/telephony"
)

type stubProvider struct{}

func (stubProvider) CreateCall(ctx context.Context, tenantID string, req telephony.CreateCallRequest) (telephony.VapiCall, error) {
	return telephony.VapiCall{ID: "vapi-1"}, nil
}

func (stubProvider) ListAssistants(ctx context.Context, tenantID string) ([]telephony.Assistant, error) {
	return []telephony.Assistant{{ID: "a1"}}, nil
}

func (stubProvider) ListPhoneNumbers(ctx context.Context, tenantID string) ([]telephony.VapiPhoneNumber, error) {
	return nil, telephony.ErrNoAPIKey
}

type fixture struct {
	router *gin.Engine
	calls  *calls.MemoryRepo
	events *events.Service
	queue  *jobs.MemoryQueue
	audit  *audit.MemoryRepo
}

func newFixture(t *testing.T, tenantID, role string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		calls:  calls.NewMemoryRepo(),
		events: events.NewService(events.NewMemoryRepo(), time.Minute),
		queue:  jobs.NewMemoryQueue(time.Now),
		audit:  audit.NewMemoryRepo(),
	}
	h := Handlers{
		Outbound:  outbound.NewService(stubProvider{}, calls.NewReconciler(f.calls), "US"),
		Calls:     f.calls,
		Events:    f.events,
		Campaigns: reporting.NewService(f.calls, reporting.NewMemoryRepo()),
		Leads:     leads.NewMemoryRepo(),
		Jobs:      jobs.NewEnqueuer(f.queue),
		Replay: func(id string) jobs.Spec {
			return jobs.Spec{Queue: jobs.QueueWebhooks, Kind: "webhook.replay", ID: "replay:" + id, Payload: map[string]string{"event_id": id}}
		},
		Audit:  audit.NewService(f.audit),
		Region: "US",
	}

	r := gin.New()
	v1 := r.Group("/v1", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u1", tenantID, role))
		c.Next()
	})
	h.Register(v1)
	f.router = r
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestDispatchOutbound(t *testing.T) {
	f := newFixture(t, "t1", rbac.RoleOperator)

	w := f.do(http.MethodPost, "/v1/calls/outbound", outbound.Request{CustomerNumber: "+14155552671", AssistantID: "a1", PhoneNumberID: "p1"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var rec calls.CallRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "vapi-1", rec.ExternalID)
	assert.Len(t, f.audit.Entries("t1"), 1)

	w = f.do(http.MethodGet, "/v1/calls/"+rec.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/v1/calls/outbound", outbound.Request{CustomerNumber: "+14155552671"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCall_OtherTenantIsNotFound(t *testing.T) {
	f := newFixture(t, "t1", rbac.RoleOwner)
	_, _, err := f.calls.Upsert(context.Background(), calls.Event{InternalID: "c-other", TenantID: "t2"}, time.Now())
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/v1/calls/c-other", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplayWebhookEvent(t *testing.T) {
	f := newFixture(t, "t1", rbac.RoleAdmin)
	ev, _, err := f.events.Record(context.Background(), events.WebhookEvent{
		IdempotencyKey: "evt:vapi:1", Provider: events.ProviderVapi, Type: "call-started", TenantID: "t1",
	})
	require.NoError(t, err)
	require.NoError(t, f.events.MarkFailed(context.Background(), ev.ID, assert.AnError))

	w := f.do(http.MethodGet, "/v1/webhook-events?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ev.ID)

	w = f.do(http.MethodPost, "/v1/webhook-events/"+ev.ID+"/replay", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Len(t, f.queue.Pending(jobs.QueueWebhooks), 1)
	assert.Len(t, f.audit.Entries("t1"), 1)

	w = f.do(http.MethodPost, "/v1/webhook-events/missing/replay", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplayWebhookEvent_OperatorForbidden(t *testing.T) {
	f := newFixture(t, "t1", rbac.RoleOperator)
	w := f.do(http.MethodPost, "/v1/webhook-events/any/replay", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVoiceConfiguration(t *testing.T) {
	f := newFixture(t, "t1", rbac.RoleViewer)

	w := f.do(http.MethodGet, "/v1/voice/assistants", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/voice/phone-numbers", nil)
	assert.Equal(t, http.StatusFailedDependency, w.Code)
}

func TestListWebhookEvents_BadStatus(t *testing.T) {
	f := newFixture(t, "t1", rbac.RoleOwner)
	w := f.do(http.MethodGet, "/v1/webhook-events?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
