package telephony

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	twilioclient "github.com/twilio/twilio-go/client"

	"voice-platform/internal/calls"
	"voice-platform/internal/events"
)

// HeaderTwilioSignature carries Twilio's request signature.
const HeaderTwilioSignature = "X-Twilio-Signature"

// Query parameters we append to Twilio status callback URLs.
const (
	TwilioParamTenant = "tenant"
	TwilioParamCallID = "call_id"
)

// ParseTwilioStatus maps a call status callback form onto a ProviderEvent.
//
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
// When the callback URL carries call_id (our internal id) the CallSid is kept
// in metadata and the internal id identifies the call; otherwise CallSid is
// the external id.
func ParseTwilioStatus(form url.Values, query url.Values) (ProviderEvent, error) {
	sid := strings.TrimSpace(form.Get("CallSid"))
	if sid == "" {
		return ProviderEvent{}, fmt.Errorf("%w: CallSid is required", ErrInvalidPayload)
	}
	status := strings.TrimSpace(form.Get("CallStatus"))
	if status == "" {
		return ProviderEvent{}, fmt.Errorf("%w: CallStatus is required", ErrInvalidPayload)
	}

	at := parseTwilioTime(form.Get("Timestamp"))
	ev := calls.Event{
		Status:         mapTwilioStatus(status),
		At:             at,
		CustomerNumber: form.Get("To"),
		PhoneNumber:    form.Get("From"),
		Metadata:       map[string]any{"twilio_call_sid": sid},
	}
	if strings.HasPrefix(strings.ToLower(form.Get("Direction")), "inbound") {
		ev.Direction = calls.DirectionInbound
		ev.CustomerNumber, ev.PhoneNumber = form.Get("From"), form.Get("To")
	} else if form.Get("Direction") != "" {
		ev.Direction = calls.DirectionOutbound
	}

	if internal := strings.TrimSpace(query.Get(TwilioParamCallID)); internal != "" {
		ev.InternalID = internal
	} else {
		ev.ExternalID = sid
	}
	ev.TenantID = strings.TrimSpace(query.Get(TwilioParamTenant))

	if d := form.Get("CallDuration"); d != "" {
		if n, err := strconv.ParseFloat(d, 64); err == nil {
			ev.DurationSeconds = &n
		}
	}
	if u := form.Get("RecordingUrl"); u != "" {
		ev.RecordingURL = u
	}
	if calls.IsTerminal(ev.Status) && !at.IsZero() {
		t := at
		ev.EndedAt = &t
	}
	if ev.Status == calls.StatusInProgress && !at.IsZero() {
		t := at
		ev.StartedAt = &t
	}

	eventID := ""
	if seq := form.Get("SequenceNumber"); seq != "" {
		eventID = sid + ":" + seq
	}
	return ProviderEvent{
		Provider:   events.ProviderTwilio,
		EventID:    eventID,
		Type:       "status-" + status,
		OccurredAt: at,
		TenantHint: ev.TenantID,
		Call:       ev,
	}, nil
}

func mapTwilioStatus(s string) calls.CallStatus {
	switch strings.ToLower(s) {
	case "queued", "initiated":
		return calls.StatusQueued
	case "ringing":
		return calls.StatusRinging
	case "in-progress", "answered":
		return calls.StatusInProgress
	case "completed":
		return calls.StatusCompleted
	case "busy":
		return calls.StatusBusy
	case "no-answer":
		return calls.StatusNoAnswer
	case "failed":
		return calls.StatusFailed
	case "canceled":
		return calls.StatusHungUp
	default:
		return ""
	}
}

func parseTwilioTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ValidateTwilioSignature checks X-Twilio-Signature for a form POST to fullURL.
func ValidateTwilioSignature(authToken, fullURL string, form url.Values, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return ErrMissingSignature
	}
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	v := twilioclient.NewRequestValidator(authToken)
	if !v.Validate(fullURL, params, signature) {
		return ErrInvalidSignature
	}
	return nil
}
