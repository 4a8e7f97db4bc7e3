package calls

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome describes what one reconciled event did to its call.
type Outcome struct {
	Record  CallRecord
	Created bool

	// Ended is set when the event itself reports the end of the call.
	Ended bool
	// CallEnded reflects the merged record: terminal status or an end time.
	CallEnded bool
	// UsageReported is set when an ending event carried cost or duration.
	UsageReported bool
	// TranscriptPresent reflects the merged record, not just this event.
	TranscriptPresent bool
}

// NeedsExtraction reports whether the call has ended with a transcript that
// has not been analyzed yet, whichever event completed that state.
func (o Outcome) NeedsExtraction() bool {
	return o.CallEnded && o.TranscriptPresent && o.Record.AnalyzedAt == nil
}

// NeedsTranscriptPoll reports whether the call ended without a transcript and
// no poll chain has been started for it.
func (o Outcome) NeedsTranscriptPoll() bool {
	return o.CallEnded && !o.TranscriptPresent && o.Record.TranscriptStatus == TranscriptPending
}

// Reconciler applies lifecycle events to call records.
type Reconciler struct {
	store Store
	clock func() time.Time
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, clock: time.Now}
}

// Apply upserts ev. Events may arrive in any order and more than once.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	if ev.ExternalID == "" && ev.InternalID == "" {
		return Outcome{}, ErrNoCallIdentity
	}
	rec, created, err := r.store.Upsert(ctx, ev, r.clock().UTC())
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert call: %w", err)
	}
	ended := ev.Ended()
	return Outcome{
		Record:            rec,
		Created:           created,
		Ended:             ended,
		CallEnded:         ended || IsTerminal(rec.Status) || rec.EndedAt != nil,
		UsageReported:     ended && ev.HasUsage(),
		TranscriptPresent: rec.Transcript != "",
	}, nil
}

// Lookup finds a call by external id first, then internal id.
func (r *Reconciler) Lookup(ctx context.Context, externalID, internalID string) (CallRecord, error) {
	if externalID != "" {
		rec, err := r.store.GetByExternalID(ctx, externalID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return CallRecord{}, err
		}
	}
	if internalID != "" {
		return r.store.Get(ctx, internalID)
	}
	return CallRecord{}, ErrNotFound
}
