package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("calls: not found")
	ErrNoCallIdentity = errors.New("calls: event carries neither an external nor an internal call id")
	ErrTenantMismatch = errors.New("calls: event tenant does not own the call")
)

// Store persists CallRecords. Upsert must apply Merge semantics atomically per
// call so concurrent events for the same call converge without explicit locks.
type Store interface {
	// Upsert merges ev into the record identified by ev.ExternalID, falling back
	// to ev.InternalID. It reports whether a new record was created. An event
	// naming a tenant other than the record's owner fails with ErrTenantMismatch.
	Upsert(ctx context.Context, ev Event, now time.Time) (CallRecord, bool, error)
	Get(ctx context.Context, id string) (CallRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (CallRecord, error)
	// SetTranscriptStatus never downgrades a call whose transcript is present.
	SetTranscriptStatus(ctx context.Context, id string, status TranscriptStatus) error
	// ClaimTranscriptPoll moves a pending call without a transcript to polling.
	// It reports false when another chain already holds the call.
	ClaimTranscriptPoll(ctx context.Context, id string) (bool, error)
	SaveAnalysis(ctx context.Context, id string, a Analysis) (CallRecord, error)
	ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]CallRecord, error)
}
