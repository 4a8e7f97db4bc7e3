package calls

import "time"

// CallRecord is one phone call as the platform knows it.
//
// A record is addressable by its internal ID and, once the voice provider has
// assigned one, by ExternalID. ExternalID is globally unique. Records are never
// hard-deleted.
type CallRecord struct {
	ID         string `json:"id" db:"id"`
	ExternalID string `json:"external_id,omitempty" db:"external_id"`
	TenantID   string `json:"tenant_id,omitempty" db:"tenant_id"`

	Direction Direction  `json:"direction,omitempty" db:"direction"`
	Status    CallStatus `json:"status" db:"status"`
	// StatusAt is the provider time of the event that set Status.
	StatusAt *time.Time `json:"status_at,omitempty" db:"status_at"`

	CustomerNumber string `json:"customer_number,omitempty" db:"customer_number"`
	PhoneNumber    string `json:"phone_number,omitempty" db:"phone_number"`
	AssistantID    string `json:"assistant_id,omitempty" db:"assistant_id"`
	LeadID         string `json:"lead_id,omitempty" db:"lead_id"`
	CampaignID     string `json:"campaign_id,omitempty" db:"campaign_id"`

	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds float64    `json:"duration_seconds" db:"duration_seconds"`
	Cost            float64    `json:"cost" db:"cost"`

	Transcript       string           `json:"transcript,omitempty" db:"transcript"`
	TranscriptStatus TranscriptStatus `json:"transcript_status" db:"transcript_status"`
	RecordingURL     string           `json:"recording_url,omitempty" db:"recording_url"`
	EndedReason      string           `json:"ended_reason,omitempty" db:"ended_reason"`
	Summary          string           `json:"summary,omitempty" db:"summary"`

	// Populated by the extraction pipeline.
	Outcome    string     `json:"outcome,omitempty" db:"outcome"`
	Sentiment  string     `json:"sentiment,omitempty" db:"sentiment"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty" db:"analyzed_at"`

	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	StatusQueued       CallStatus = "queued"
	StatusRinging      CallStatus = "ringing"
	StatusInProgress   CallStatus = "in_progress"
	StatusTransferring CallStatus = "transferring"
	StatusOnHold       CallStatus = "on_hold"
	StatusCompleted    CallStatus = "completed"
	StatusHungUp       CallStatus = "hung_up"
	StatusNoAnswer     CallStatus = "no_answer"
	StatusBusy         CallStatus = "busy"
	StatusFailed       CallStatus = "failed"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type TranscriptStatus string

const (
	TranscriptPending     TranscriptStatus = "pending"
	TranscriptPolling     TranscriptStatus = "polling"
	TranscriptAvailable   TranscriptStatus = "available"
	TranscriptUnavailable TranscriptStatus = "unavailable"
)

// Event is a partial update to a CallRecord derived from one provider event.
// Empty strings and nil pointers mean "not carried by this event".
type Event struct {
	ExternalID string
	InternalID string
	TenantID   string

	Direction Direction
	Status    CallStatus
	// At is when the provider says the event happened.
	At time.Time

	CustomerNumber string
	PhoneNumber    string
	AssistantID    string
	LeadID         string
	CampaignID     string

	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *float64
	Cost            *float64

	Transcript   string
	RecordingURL string
	EndedReason  string
	Summary      string

	Metadata map[string]any
}

// Ended reports whether the event describes the end of the call.
func (e Event) Ended() bool {
	return IsTerminal(e.Status) || e.EndedAt != nil
}

// HasUsage reports whether the event carries cost or duration.
func (e Event) HasUsage() bool {
	return e.DurationSeconds != nil || e.Cost != nil
}

// Analysis is what the extraction pipeline writes back onto a call.
type Analysis struct {
	Outcome    string
	Sentiment  string
	Summary    string
	LeadID     string
	Metadata   map[string]any
	AnalyzedAt time.Time
}
