package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-platform/internal/calls"
)

func seed(t *testing.T, store *calls.MemoryRepo, evs ...calls.Event) {
	t.Helper()
	for _, ev := range evs {
		if _, _, err := store.Upsert(context.Background(), ev, time.Now()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func f(v float64) *float64 { return &v }

func TestRecomputeCampaign(t *testing.T) {
	store := calls.NewMemoryRepo()
	started := time.Unix(1700000000, 0).UTC()
	seed(t, store,
		calls.Event{ExternalID: "a", TenantID: "t1", CampaignID: "camp", Status: calls.StatusCompleted, StartedAt: &started, DurationSeconds: f(60), Cost: f(0.5), Metadata: map[string]any{"qualified": true}},
		calls.Event{ExternalID: "b", TenantID: "t1", CampaignID: "camp", Status: calls.StatusNoAnswer},
		calls.Event{ExternalID: "c", TenantID: "t1", CampaignID: "camp", Status: calls.StatusHungUp, StartedAt: &started, DurationSeconds: f(12), Cost: f(0.1)},
		calls.Event{ExternalID: "d", TenantID: "t2", CampaignID: "camp", Status: calls.StatusCompleted, DurationSeconds: f(99)},
	)
	repo := NewMemoryRepo()
	svc := NewService(store, repo)

	m, err := svc.RecomputeCampaign(context.Background(), "t1", "camp")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if m.Attempted != 3 || m.Connected != 2 || m.Completed != 1 || m.Qualified != 1 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.TotalDurationSeconds != 72 {
		t.Fatalf("expected duration 72, got %v", m.TotalDurationSeconds)
	}
	if m.TotalCost < 0.599 || m.TotalCost > 0.601 {
		t.Fatalf("expected cost 0.6, got %v", m.TotalCost)
	}

	stored, err := svc.Campaign(context.Background(), "t1", "camp")
	if err != nil || stored.Attempted != 3 {
		t.Fatalf("expected stored aggregate, got %+v %v", stored, err)
	}
}

func TestRecomputeCampaign_IsIdempotent(t *testing.T) {
	store := calls.NewMemoryRepo()
	seed(t, store, calls.Event{ExternalID: "a", TenantID: "t1", CampaignID: "camp", Status: calls.StatusCompleted, DurationSeconds: f(10)})
	svc := NewService(store, NewMemoryRepo())

	first, _ := svc.RecomputeCampaign(context.Background(), "t1", "camp")
	second, _ := svc.RecomputeCampaign(context.Background(), "t1", "camp")
	if first.Attempted != second.Attempted || first.TotalDurationSeconds != second.TotalDurationSeconds {
		t.Fatalf("recompute must not accumulate: %+v vs %+v", first, second)
	}
}

func TestRecomputeCampaign_Validation(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo(), NewMemoryRepo())
	if _, err := svc.RecomputeCampaign(context.Background(), "", "camp"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.Campaign(context.Background(), "t1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
