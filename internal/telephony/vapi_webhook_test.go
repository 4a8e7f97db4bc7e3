package telephony

import (
	"errors"
	"testing"

	"voice-platform/internal/calls"
	"voice-platform/internal/events"
)

func TestParseVapiWebhook_EndOfCallReport(t *testing.T) {
	raw := []byte(`{"message":{
		"type":"end-of-call-report",
		"timestamp":1700000100000,
		"endedReason":"customer-ended-call",
		"durationSeconds":42.5,
		"cost":"0.31",
		"artifact":{"transcript":"AI: hi\nUser: schedule a demo","recordingUrl":"https://rec/1.wav"},
		"analysis":{"summary":"wants demo","structuredData":{"interest":8}},
		"call":{
			"id":"vapi-1",
			"type":"outboundPhoneCall",
			"customer":{"number":"+15551230000"},
			"phoneNumber":{"number":"+15557770000"},
			"assistantOverrides":{"metadata":{"tenantId":"t1","internalCallId":"c-1","campaignId":"camp-9"}}
		}
	}}`)

	ev, err := ParseVapiWebhook(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Provider != events.ProviderVapi || ev.Type != EventEndOfCallReport {
		t.Fatalf("unexpected provider/type: %q %q", ev.Provider, ev.Type)
	}
	if ev.TenantHint != "t1" {
		t.Fatalf("expected tenant hint t1, got %q", ev.TenantHint)
	}
	c := ev.Call
	if c.ExternalID != "vapi-1" || c.InternalID != "c-1" || c.CampaignID != "camp-9" {
		t.Fatalf("unexpected ids: %+v", c)
	}
	if c.Status != calls.StatusCompleted {
		t.Fatalf("expected completed, got %q", c.Status)
	}
	if c.Direction != calls.DirectionOutbound {
		t.Fatalf("expected outbound, got %q", c.Direction)
	}
	if c.DurationSeconds == nil || *c.DurationSeconds != 42.5 {
		t.Fatalf("expected duration 42.5, got %v", c.DurationSeconds)
	}
	if c.Cost == nil || *c.Cost != 0.31 {
		t.Fatalf("expected cost 0.31, got %v", c.Cost)
	}
	if c.Transcript == "" || c.RecordingURL != "https://rec/1.wav" || c.Summary != "wants demo" {
		t.Fatalf("expected transcript/recording/summary, got %+v", c)
	}
	if c.EndedAt == nil {
		t.Fatalf("expected ended_at from timestamp")
	}
	if _, ok := c.Metadata["provider_analysis"]; !ok {
		t.Fatalf("expected provider_analysis metadata")
	}
}

func TestParseVapiWebhook_FlatEnvelope(t *testing.T) {
	ev, err := ParseVapiWebhook([]byte(`{"type":"call-started","call":{"id":"v2"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Call.ExternalID != "v2" || ev.Call.Status != calls.StatusInProgress {
		t.Fatalf("unexpected event: %+v", ev.Call)
	}
}

func TestParseVapiWebhook_EndedReasonMapsTerminalStatus(t *testing.T) {
	ev, err := ParseVapiWebhook([]byte(`{"message":{"type":"call-ended","endedReason":"customer-busy","call":{"id":"v3"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Call.Status != calls.StatusBusy {
		t.Fatalf("expected busy, got %q", ev.Call.Status)
	}
}

func TestParseVapiWebhook_LiveTranscriptNotStored(t *testing.T) {
	ev, err := ParseVapiWebhook([]byte(`{"message":{"type":"transcript","transcriptType":"partial","transcript":"hel","call":{"id":"v4"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Call.Transcript != "" {
		t.Fatalf("partial transcript must not be stored, got %q", ev.Call.Transcript)
	}
	if ev.Call.Status != calls.StatusInProgress {
		t.Fatalf("expected in_progress, got %q", ev.Call.Status)
	}
}

func TestParseVapiWebhook_Invalid(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":    ``,
		"not json": `{"message":`,
		"no type":  `{"message":{"call":{"id":"x"}}}`,
	} {
		if _, err := ParseVapiWebhook([]byte(raw)); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%s: expected ErrInvalidPayload, got %v", name, err)
		}
	}
}
