package events

import "time"

// WebhookEvent is one received provider payload.
//
// Invariants:
// - IdempotencyKey is unique; a second event with the same key is never stored.
// - Payload is the raw body as received and is never rewritten.
// - Only Status, Error, Attempts and ProcessedAt change after the insert.
type WebhookEvent struct {
	ID             string `json:"id" db:"id"`
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	Provider Provider `json:"provider" db:"provider"`
	Type     string   `json:"type" db:"type"`

	CallExternalID string `json:"call_external_id,omitempty" db:"call_external_id"`
	TenantID       string `json:"tenant_id,omitempty" db:"tenant_id"`

	Payload []byte `json:"-" db:"payload"`

	Status   Status `json:"status" db:"status"`
	Error    string `json:"error,omitempty" db:"error"`
	Attempts int    `json:"attempts" db:"attempts"`

	ReceivedAt  time.Time  `json:"received_at" db:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

type Provider string

const (
	ProviderVapi   Provider = "vapi"
	ProviderTwilio Provider = "twilio"
)
