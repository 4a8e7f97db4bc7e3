package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticKey(key string) KeyFunc {
	return func(ctx context.Context, tenantID string) (string, error) { return key, nil }
}

func TestVapiClient_CreateCall(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/call", r.URL.Path)
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"vapi-55","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewVapiClient(VapiClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, staticKey("k1"))
	out, err := c.CreateCall(context.Background(), "t1", CreateCallRequest{
		AssistantID: "asst-1",
		Customer:    VapiCustomer{Number: "+15551230000"},
		Metadata:    map[string]any{"internalCallId": "c-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "vapi-55", out.ID)

	assert.Equal(t, "asst-1", got["assistantId"])
	overrides, _ := got["assistantOverrides"].(map[string]any)
	meta, _ := overrides["metadata"].(map[string]any)
	assert.Equal(t, "c-1", meta["internalCallId"])
}

func TestVapiClient_GetCallNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/call/missing", r.URL.Path)
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewVapiClient(VapiClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, staticKey("k1"))
	_, err := c.GetCall(context.Background(), "t1", "missing")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	assert.True(t, apiErr.NotFound())
}

func TestVapiClient_GetCallTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"v1","status":"ended","endedReason":"assistant-ended-call","artifact":{"transcript":"AI: hello"}}`))
	}))
	defer srv.Close()

	c := NewVapiClient(VapiClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, staticKey("k1"))
	detail, err := c.GetCall(context.Background(), "t1", "v1")
	require.NoError(t, err)

	ev := detail.LifecycleEvent()
	assert.Equal(t, "AI: hello", ev.Transcript)
	assert.Equal(t, "v1", ev.ExternalID)
}

func TestVapiClient_ListEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/assistant":
			_, _ = w.Write([]byte(`[{"id":"a1","name":"Sales"}]`))
		case "/phone-number":
			_, _ = w.Write([]byte(`[{"id":"p1","number":"+15557770000"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewVapiClient(VapiClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, staticKey("k1"))
	as, err := c.ListAssistants(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, as, 1)
	assert.Equal(t, "Sales", as[0].Name)

	ns, err := c.ListPhoneNumbers(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "+15557770000", ns[0].Number)
}

func TestVapiClient_NoKey(t *testing.T) {
	c := NewVapiClient(VapiClientConfig{BaseURL: "http://127.0.0.1:1"}, staticKey(""))
	_, err := c.ListAssistants(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
