package tenancy

import (
	"context"
	"errors"
	"strings"

	"voice-platform/internal/calls"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/phone"
)

var ErrNotFound = errors.New("tenancy: not found")

// Source records which signal identified the tenant.
type Source string

const (
	SourceHint    Source = "hint"
	SourceCall    Source = "call"
	SourcePhone   Source = "phone"
	SourceUnknown Source = "unknown"
)

// Resolution is the result of identity resolution. An unknown tenant is not an
// error: the event is processed without tenant-scoped side effects.
type Resolution struct {
	TenantID string
	Source   Source
	// CallID is the internal id of a matching call record, if one was found.
	CallID string
	// HintConflict is set when the hint names a tenant other than the owner
	// of the matching call record. TenantID is then the owner's.
	HintConflict bool
}

func (r Resolution) Known() bool { return r.TenantID != "" }

// CallLookup finds call records. calls.Reconciler satisfies it.
type CallLookup interface {
	Lookup(ctx context.Context, externalID, internalID string) (calls.CallRecord, error)
}

// PhoneDirectory maps provisioned numbers (E.164) to their owning tenant.
type PhoneDirectory interface {
	TenantForNumber(ctx context.Context, e164 string) (string, error)
}

// Input carries every identity signal an event offers.
type Input struct {
	TenantHint     string
	ExternalCallID string
	InternalCallID string
	// Numbers are tried in order; destination first, then customer.
	Numbers []string
}

// Resolver maps an inbound event to its owning tenant.
type Resolver struct {
	calls  CallLookup
	phones PhoneDirectory
	region string
}

func NewResolver(calls CallLookup, phones PhoneDirectory, defaultRegion string) *Resolver {
	return &Resolver{calls: calls, phones: phones, region: defaultRegion}
}

// Resolve tries, in order: an explicit hint, an existing call record, a phone
// number mapping. Lookup failures degrade to the next signal. A stored call's
// owner always wins over a hint naming someone else.
func (r *Resolver) Resolve(ctx context.Context, in Input) Resolution {
	log := logger.From(ctx)

	if hint := strings.TrimSpace(in.TenantHint); hint != "" {
		out := Resolution{TenantID: hint, Source: SourceHint}
		if rec, err := r.lookupCall(ctx, in); err == nil {
			out.CallID = rec.ID
			if rec.TenantID != "" && rec.TenantID != hint {
				log.Warn("identity: tenant hint does not own the call",
					"external_call_id", in.ExternalCallID, "hint", hint, "owner", rec.TenantID)
				out.TenantID, out.Source, out.HintConflict = rec.TenantID, SourceCall, true
			}
		}
		return out
	}

	rec, err := r.lookupCall(ctx, in)
	switch {
	case err == nil && rec.TenantID != "":
		return Resolution{TenantID: rec.TenantID, Source: SourceCall, CallID: rec.ID}
	case err != nil && !errors.Is(err, calls.ErrNotFound):
		log.Warn("identity: call lookup failed", "external_call_id", in.ExternalCallID, "err", err)
	}
	callID := rec.ID

	if r.phones != nil {
		for _, raw := range in.Numbers {
			num := phone.Normalize(raw, r.region)
			if num == "" {
				continue
			}
			tenantID, err := r.phones.TenantForNumber(ctx, num)
			if err == nil && tenantID != "" {
				return Resolution{TenantID: tenantID, Source: SourcePhone, CallID: callID}
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				log.Warn("identity: phone lookup failed", "number", num, "err", err)
			}
		}
	}

	log.Warn("identity: tenant unresolved, processing generically", "external_call_id", in.ExternalCallID)
	return Resolution{Source: SourceUnknown, CallID: callID}
}

func (r *Resolver) lookupCall(ctx context.Context, in Input) (calls.CallRecord, error) {
	if r.calls == nil || (in.ExternalCallID == "" && in.InternalCallID == "") {
		return calls.CallRecord{}, calls.ErrNotFound
	}
	return r.calls.Lookup(ctx, in.ExternalCallID, in.InternalCallID)
}
