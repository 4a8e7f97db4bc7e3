package telephony

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"voice-platform/internal/calls"
	"voice-platform/internal/events"
)

var validate = validator.New()

// vapiMessage is the webhook message. Vapi wraps it as {"message": {...}};
// older server URLs receive it flat.
type vapiMessage struct {
	Type      string    `json:"type" validate:"required,max=64"`
	ID        string    `json:"id,omitempty"`
	EventID   string    `json:"eventId,omitempty"`
	Timestamp FlexTime  `json:"timestamp"`
	Call      *VapiCall `json:"call,omitempty"`

	Status         string `json:"status,omitempty"`
	EndedReason    string `json:"endedReason,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	TranscriptType string `json:"transcriptType,omitempty"`
	Summary        string `json:"summary,omitempty"`
	RecordingURL   string `json:"recordingUrl,omitempty"`

	Cost            FlexFloat `json:"cost"`
	DurationSeconds FlexFloat `json:"durationSeconds"`
	DurationMs      FlexFloat `json:"durationMs"`
	StartedAt       FlexTime  `json:"startedAt"`
	EndedAt         FlexTime  `json:"endedAt"`

	Artifact    *VapiArtifact    `json:"artifact,omitempty"`
	Analysis    *VapiAnalysis    `json:"analysis,omitempty"`
	Customer    *VapiCustomer    `json:"customer,omitempty"`
	PhoneNumber *VapiPhoneNumber `json:"phoneNumber,omitempty"`
}

type vapiEnvelope struct {
	Message *vapiMessage `json:"message"`
}

// ParseVapiWebhook decodes a raw Vapi webhook body into a ProviderEvent.
func ParseVapiWebhook(raw []byte) (ProviderEvent, error) {
	if len(raw) == 0 {
		return ProviderEvent{}, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	var env vapiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ProviderEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	msg := env.Message
	if msg == nil || msg.Type == "" {
		var flat vapiMessage
		if err := json.Unmarshal(raw, &flat); err != nil {
			return ProviderEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		msg = &flat
	}
	msg.Type = strings.TrimSpace(msg.Type)
	if err := validate.Struct(msg); err != nil {
		return ProviderEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	call := VapiCall{}
	if msg.Call != nil {
		call = *msg.Call
	}
	ev := call.LifecycleEvent()
	ev.At = msg.Timestamp.Time
	if msg.Customer != nil && ev.CustomerNumber == "" {
		ev.CustomerNumber = msg.Customer.Number
	}
	if msg.PhoneNumber != nil && ev.PhoneNumber == "" {
		ev.PhoneNumber = msg.PhoneNumber.Number
	}
	applyMessage(&ev, msg)

	return ProviderEvent{
		Provider:   events.ProviderVapi,
		EventID:    firstNonEmpty(msg.EventID, msg.ID),
		Type:       msg.Type,
		OccurredAt: msg.Timestamp.Time,
		TenantHint: call.TenantHint(),
		Call:       ev,
	}, nil
}

// applyMessage overlays the message-level fields for each event type.
func applyMessage(ev *calls.Event, msg *vapiMessage) {
	endedReason := firstNonEmpty(msg.EndedReason, ev.EndedReason)
	ev.EndedReason = endedReason

	switch msg.Type {
	case EventCallStarted:
		ev.Status = calls.StatusInProgress
		if ev.StartedAt == nil {
			ev.StartedAt = firstTime(msg.StartedAt, msg.Timestamp)
		}

	case EventStatusUpdate:
		if s := mapVapiStatus(msg.Status, endedReason); s != "" {
			ev.Status = s
		}
		if calls.IsTerminal(ev.Status) && ev.EndedAt == nil {
			ev.EndedAt = firstTime(msg.EndedAt, msg.Timestamp)
		}

	case EventSpeechUpdate, EventConversationUpdate, EventTranscript:
		// Live updates only prove the call is connected; partial transcripts
		// are never stored as the call transcript.
		if !calls.IsTerminal(ev.Status) {
			ev.Status = calls.StatusInProgress
		}
		if msg.Type == EventTranscript && msg.TranscriptType == "" && msg.Artifact != nil {
			ev.Transcript = firstNonEmpty(msg.Artifact.Transcript, ev.Transcript)
		}

	case EventTranscriptComplete:
		ev.Transcript = firstNonEmpty(msg.Transcript, artifactTranscript(msg.Artifact), ev.Transcript)

	case EventCallEnded, EventHang:
		ev.Status = calls.TerminalStatusFromReason(endedReason)
		if ev.EndedAt == nil {
			ev.EndedAt = firstTime(msg.EndedAt, msg.Timestamp)
		}

	case EventEndOfCallReport:
		ev.Status = calls.TerminalStatusFromReason(endedReason)
		ev.Transcript = firstNonEmpty(msg.Transcript, artifactTranscript(msg.Artifact), ev.Transcript)
		ev.Summary = firstNonEmpty(msg.Summary, analysisSummary(msg.Analysis), ev.Summary)
		ev.RecordingURL = firstNonEmpty(msg.RecordingURL, artifactRecording(msg.Artifact), ev.RecordingURL)
		if p := msg.Cost.Ptr(); p != nil {
			ev.Cost = p
		}
		if t := msg.StartedAt.Ptr(); t != nil {
			ev.StartedAt = t
		}
		if t := msg.EndedAt.Ptr(); t != nil {
			ev.EndedAt = t
		}
		if ev.EndedAt == nil {
			ev.EndedAt = firstTime(msg.Timestamp)
		}
		switch {
		case msg.DurationSeconds.Valid:
			ev.DurationSeconds = msg.DurationSeconds.Ptr()
		case msg.DurationMs.Valid:
			d := msg.DurationMs.Value / 1000
			ev.DurationSeconds = &d
		}
		if msg.Analysis != nil && len(msg.Analysis.StructuredData) > 0 {
			setMeta(ev, "provider_analysis", msg.Analysis.StructuredData)
		}

	case EventAnalysisComplete:
		ev.Summary = firstNonEmpty(msg.Summary, analysisSummary(msg.Analysis), ev.Summary)
		if msg.Analysis != nil {
			if len(msg.Analysis.StructuredData) > 0 {
				setMeta(ev, "provider_analysis", msg.Analysis.StructuredData)
			}
			if msg.Analysis.SuccessEvaluation != nil {
				setMeta(ev, "provider_success_evaluation", msg.Analysis.SuccessEvaluation)
			}
		}

	case EventRecordingReady:
		ev.RecordingURL = firstNonEmpty(msg.RecordingURL, artifactRecording(msg.Artifact), ev.RecordingURL)
	}
}

func setMeta(ev *calls.Event, k string, v any) {
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	ev.Metadata[k] = v
}

func firstTime(ts ...FlexTime) *time.Time {
	for _, t := range ts {
		if p := t.Ptr(); p != nil {
			return p
		}
	}
	return nil
}
