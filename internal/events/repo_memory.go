package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory event store useful for tests.
type MemoryRepo struct {
	mu     sync.Mutex
	events map[string]WebhookEvent
	keys   map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{events: map[string]WebhookEvent{}, keys: map[string]string{}}
}

func (r *MemoryRepo) Append(ctx context.Context, e WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.keys[e.IdempotencyKey]; dup {
		return false, nil
	}
	r.keys[e.IdempotencyKey] = e.ID
	r.events[e.ID] = e
	return true, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return WebhookEvent{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, status Status, errText string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	e.Error = errText
	if status == StatusReceived {
		e.Attempts++
		e.ProcessedAt = nil
	} else {
		t := at
		e.ProcessedAt = &t
	}
	r.events[id] = e
	return nil
}

func (r *MemoryRepo) ListByStatus(ctx context.Context, tenantID string, status Status, limit int) ([]WebhookEvent, error) {
	return r.list(limit, func(e WebhookEvent) bool {
		return e.Status == status && (tenantID == "" || e.TenantID == tenantID)
	}), nil
}

func (r *MemoryRepo) ListStale(ctx context.Context, receivedBefore time.Time, limit int) ([]WebhookEvent, error) {
	return r.list(limit, func(e WebhookEvent) bool {
		return e.Status == StatusReceived && e.ReceivedAt.Before(receivedBefore)
	}), nil
}

// Events returns every stored event ordered by receipt.
func (r *MemoryRepo) Events() []WebhookEvent {
	return r.list(0, func(WebhookEvent) bool { return true })
}

func (r *MemoryRepo) list(limit int, keep func(WebhookEvent) bool) []WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
