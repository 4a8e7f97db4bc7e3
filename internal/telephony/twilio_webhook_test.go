package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/url"
	"sort"
	"testing"

	"voice-platform/internal/calls"
)

func TestParseTwilioStatus(t *testing.T) {
	form := url.Values{
		"CallSid":        {"CA123"},
		"CallStatus":     {"completed"},
		"CallDuration":   {"37"},
		"From":           {"+15557770000"},
		"To":             {"+15551230000"},
		"Direction":      {"outbound-api"},
		"SequenceNumber": {"3"},
		"Timestamp":      {"Tue, 14 Nov 2023 22:13:20 +0000"},
	}

	ev, err := ParseTwilioStatus(form, url.Values{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.EventID != "CA123:3" || ev.Type != "status-completed" {
		t.Fatalf("unexpected id/type: %q %q", ev.EventID, ev.Type)
	}
	c := ev.Call
	if c.ExternalID != "CA123" || c.Status != calls.StatusCompleted || c.Direction != calls.DirectionOutbound {
		t.Fatalf("unexpected call patch: %+v", c)
	}
	if c.CustomerNumber != "+15551230000" || c.PhoneNumber != "+15557770000" {
		t.Fatalf("unexpected numbers: %q %q", c.CustomerNumber, c.PhoneNumber)
	}
	if c.DurationSeconds == nil || *c.DurationSeconds != 37 {
		t.Fatalf("expected duration 37")
	}
	if c.EndedAt == nil {
		t.Fatalf("expected ended_at for terminal status")
	}
}

func TestParseTwilioStatus_InternalIDFromQuery(t *testing.T) {
	form := url.Values{"CallSid": {"CA9"}, "CallStatus": {"canceled"}}
	query := url.Values{TwilioParamCallID: {"c-77"}, TwilioParamTenant: {"t1"}}

	ev, err := ParseTwilioStatus(form, query)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Call.InternalID != "c-77" || ev.Call.ExternalID != "" {
		t.Fatalf("expected internal id identity, got %+v", ev.Call)
	}
	if ev.TenantHint != "t1" || ev.Call.Status != calls.StatusHungUp {
		t.Fatalf("unexpected tenant/status: %q %q", ev.TenantHint, ev.Call.Status)
	}
	if ev.Call.Metadata["twilio_call_sid"] != "CA9" {
		t.Fatalf("expected call sid in metadata")
	}
}

func TestParseTwilioStatus_RequiresSidAndStatus(t *testing.T) {
	if _, err := ParseTwilioStatus(url.Values{"CallStatus": {"ringing"}}, nil); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := ParseTwilioStatus(url.Values{"CallSid": {"CA1"}}, nil); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestValidateTwilioSignature(t *testing.T) {
	fullURL := "https://hooks.example.com/webhooks/twilio/status?tenant=t1"
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"ringing"}}
	sig := twilioSign("tok", fullURL, form)

	if err := ValidateTwilioSignature("tok", fullURL, form, sig); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateTwilioSignature("other", fullURL, form, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if err := ValidateTwilioSignature("tok", fullURL, form, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing, got %v", err)
	}
}

func twilioSign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := fullURL
	for _, k := range keys {
		s += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(s))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
