package leads

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Store for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	leads map[string]Lead // key: tenant_id|phone
	notes map[string][]Note
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{leads: map[string]Lead{}, notes: map[string][]Note{}}
}

func (r *MemoryRepo) Upsert(ctx context.Context, lead Lead, note Note) (Lead, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lead.TenantID + "|" + lead.Phone
	cur, exists := r.leads[key]
	out := lead
	if exists {
		out = MergeLead(cur, lead)
	}
	r.leads[key] = out

	note.LeadID = out.ID
	r.notes[out.ID] = []Note{note}
	return out, !exists, nil
}

func (r *MemoryRepo) GetByPhone(ctx context.Context, tenantID, phone string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[tenantID+"|"+phone]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) Notes(ctx context.Context, leadID string) ([]Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Note(nil), r.notes[leadID]...), nil
}

// Count returns the number of stored leads.
func (r *MemoryRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leads)
}
