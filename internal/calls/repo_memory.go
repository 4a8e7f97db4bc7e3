package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Store useful for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	byID  map[string]CallRecord
	byExt map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]CallRecord{}, byExt: map[string]string{}}
}

func (r *MemoryRepo) Upsert(ctx context.Context, ev Event, now time.Time) (CallRecord, bool, error) {
	if ev.ExternalID == "" && ev.InternalID == "" {
		return CallRecord{}, false, ErrNoCallIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var cur *CallRecord
	if ev.ExternalID != "" {
		if id, ok := r.byExt[ev.ExternalID]; ok {
			rec := r.byID[id]
			cur = &rec
		}
	}
	if cur == nil && ev.InternalID != "" {
		if rec, ok := r.byID[ev.InternalID]; ok && (rec.ExternalID == "" || ev.ExternalID == "" || rec.ExternalID == ev.ExternalID) {
			cur = &rec
		}
	}

	if cur != nil && cur.TenantID != "" && ev.TenantID != "" && cur.TenantID != ev.TenantID {
		return CallRecord{}, false, ErrTenantMismatch
	}

	created := cur == nil
	if created {
		if _, taken := r.byID[ev.InternalID]; ev.InternalID == "" || taken {
			ev.InternalID = uuid.NewString()
		}
	}
	next := Merge(cur, ev, now)
	r.byID[next.ID] = next
	if next.ExternalID != "" {
		r.byExt[next.ExternalID] = next.ID
	}
	return copyRecord(next), created, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (r *MemoryRepo) GetByExternalID(ctx context.Context, externalID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byExt[externalID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return copyRecord(r.byID[id]), nil
}

func (r *MemoryRepo) SetTranscriptStatus(ctx context.Context, id string, status TranscriptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Transcript != "" && status != TranscriptAvailable {
		return nil
	}
	rec.TranscriptStatus = status
	r.byID[id] = rec
	return nil
}

func (r *MemoryRepo) ClaimTranscriptPoll(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.Transcript != "" || rec.TranscriptStatus != TranscriptPending {
		return false, nil
	}
	rec.TranscriptStatus = TranscriptPolling
	r.byID[id] = rec
	return true, nil
}

func (r *MemoryRepo) SaveAnalysis(ctx context.Context, id string, a Analysis) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	next := ApplyAnalysis(rec, a)
	r.byID[id] = next
	return copyRecord(next), nil
}

func (r *MemoryRepo) ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallRecord
	for _, rec := range r.byID {
		if rec.TenantID == tenantID && rec.CampaignID == campaignID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Count returns the number of stored records.
func (r *MemoryRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func copyRecord(rec CallRecord) CallRecord {
	rec.Metadata = cloneMap(rec.Metadata)
	return rec
}
