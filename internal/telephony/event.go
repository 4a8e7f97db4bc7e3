package telephony

import (
	"errors"
	"time"

	"voice-platform/internal/calls"
	"voice-platform/internal/events"
	"voice-platform/internal/tenancy"
)

var (
	ErrInvalidPayload   = errors.New("telephony: invalid webhook payload")
	ErrMissingSignature = errors.New("telephony: missing webhook signature")
	ErrInvalidSignature = errors.New("telephony: invalid webhook signature")
)

// Vapi event types the pipeline reacts to.
const (
	EventCallStarted        = "call-started"
	EventCallEnded          = "call-ended"
	EventEndOfCallReport    = "end-of-call-report"
	EventTranscript         = "transcript"
	EventTranscriptComplete = "transcript-complete"
	EventAnalysisComplete   = "analysis-complete"
	EventSpeechUpdate       = "speech-update"
	EventStatusUpdate       = "status-update"
	EventRecordingReady     = "recording-ready"
	EventConversationUpdate = "conversation-update"
	EventHang               = "hang"
)

// ProviderEvent is a provider webhook normalized into a call lifecycle patch.
type ProviderEvent struct {
	Provider events.Provider
	// EventID is the provider's own event id, when it sends one.
	EventID    string
	Type       string
	OccurredAt time.Time
	// TenantHint is a tenant id embedded in the payload (call metadata).
	TenantHint string
	Call       calls.Event
}

// CallID returns the best identifier for idempotency keys and logs.
func (e ProviderEvent) CallID() string {
	if e.Call.ExternalID != "" {
		return e.Call.ExternalID
	}
	return e.Call.InternalID
}

// IdentityInput gathers the identity signals. urlHint (from the webhook URL)
// is used only when the payload carries no hint.
func (e ProviderEvent) IdentityInput(urlHint string) tenancy.Input {
	hint := e.TenantHint
	if hint == "" {
		hint = urlHint
	}
	return tenancy.Input{
		TenantHint:     hint,
		ExternalCallID: e.Call.ExternalID,
		InternalCallID: e.Call.InternalID,
		Numbers:        []string{e.Call.PhoneNumber, e.Call.CustomerNumber},
	}
}
