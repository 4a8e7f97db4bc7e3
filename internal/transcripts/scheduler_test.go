package transcripts

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-platform/internal/calls"
	"voice-platform/internal/jobs"
	"voice-platform/internal/telephony"
)

type fakeProvider struct {
	transcriptAfter int
	calls           int
	err             error
}

func (f *fakeProvider) GetCall(ctx context.Context, tenantID, callID string) (telephony.CallDetail, error) {
	f.calls++
	if f.err != nil {
		return telephony.CallDetail{}, f.err
	}
	d := telephony.CallDetail{ID: callID, Status: "ended"}
	if f.transcriptAfter > 0 && f.calls >= f.transcriptAfter {
		d.Transcript = "AI: hello\nUser: call me back tomorrow"
	}
	return d, nil
}

type recordingExtraction struct{ got []calls.CallRecord }

func (r *recordingExtraction) EnqueueExtraction(ctx context.Context, rec calls.CallRecord) error {
	r.got = append(r.got, rec)
	return nil
}

func endedCall(t *testing.T, store *calls.MemoryRepo) calls.CallRecord {
	t.Helper()
	rec, _, err := store.Upsert(context.Background(), calls.Event{
		ExternalID: "vapi-1",
		TenantID:   "t1",
		Status:     calls.StatusCompleted,
	}, time.Now())
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return rec
}

// drain runs every pending poll job in order and returns the delays observed.
func drain(t *testing.T, s *Scheduler, q *jobs.MemoryQueue) []time.Duration {
	t.Helper()
	var delays []time.Duration
	for i := 0; i < 20; i++ {
		pending := q.Pending(jobs.QueueProvider)
		if len(pending) == 0 {
			return delays
		}
		job := pending[0]
		delays = append(delays, job.DueAt.Sub(job.EnqueuedAt))
		if err := q.Ack(context.Background(), job); err != nil {
			t.Fatalf("ack: %v", err)
		}
		if err := s.HandlePoll(context.Background(), job); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	t.Fatalf("poll chain did not terminate")
	return nil
}

func TestScheduler_ExhaustsAfterSixAttempts(t *testing.T) {
	store := calls.NewMemoryRepo()
	rec := endedCall(t, store)
	q := jobs.NewMemoryQueue(time.Now)
	provider := &fakeProvider{}
	s := NewScheduler(provider, store, calls.NewReconciler(store), jobs.NewEnqueuer(q), nil,
		Policy{BaseDelay: 5 * time.Second, MaxAttempts: 6}, nil)

	if err := s.Schedule(context.Background(), rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	delays := drain(t, s, q)

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second, 160 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d attempts, got %d (%v)", len(want), len(delays), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("attempt %d: expected delay %s, got %s", i+1, want[i], delays[i])
		}
	}
	if provider.calls != 6 {
		t.Fatalf("expected 6 provider fetches, got %d", provider.calls)
	}

	got, err := store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TranscriptStatus != calls.TranscriptUnavailable {
		t.Fatalf("expected transcript unavailable, got %q", got.TranscriptStatus)
	}
}

func TestScheduler_FoundTriggersExtraction(t *testing.T) {
	store := calls.NewMemoryRepo()
	rec := endedCall(t, store)
	q := jobs.NewMemoryQueue(time.Now)
	ext := &recordingExtraction{}
	s := NewScheduler(&fakeProvider{transcriptAfter: 3}, store, calls.NewReconciler(store), jobs.NewEnqueuer(q), ext,
		Policy{BaseDelay: time.Second, MaxAttempts: 6}, nil)

	if err := s.Schedule(context.Background(), rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	delays := drain(t, s, q)
	if len(delays) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(delays))
	}
	if len(ext.got) != 1 || ext.got[0].ID != rec.ID {
		t.Fatalf("expected one extraction for %s, got %+v", rec.ID, ext.got)
	}

	got, _ := store.Get(context.Background(), rec.ID)
	if got.Transcript == "" || got.TranscriptStatus != calls.TranscriptAvailable {
		t.Fatalf("expected transcript stored, got %+v", got)
	}
	if store.Count() != 1 {
		t.Fatalf("expected no duplicate call record, got %d", store.Count())
	}
}

func TestScheduler_ProviderErrorsCountAsMisses(t *testing.T) {
	store := calls.NewMemoryRepo()
	rec := endedCall(t, store)
	q := jobs.NewMemoryQueue(time.Now)
	s := NewScheduler(&fakeProvider{err: errors.New("502")}, store, calls.NewReconciler(store), jobs.NewEnqueuer(q), nil,
		Policy{BaseDelay: time.Second, MaxAttempts: 2}, nil)

	_ = s.Schedule(context.Background(), rec)
	if n := len(drain(t, s, q)); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestScheduler_DuplicateScheduleIsNoop(t *testing.T) {
	store := calls.NewMemoryRepo()
	rec := endedCall(t, store)
	q := jobs.NewMemoryQueue(time.Now)
	s := NewScheduler(&fakeProvider{}, store, calls.NewReconciler(store), jobs.NewEnqueuer(q), nil, Policy{}, nil)

	_ = s.Schedule(context.Background(), rec)
	_ = s.Schedule(context.Background(), rec)
	if n := len(q.Pending(jobs.QueueProvider)); n != 1 {
		t.Fatalf("expected one pending poll, got %d", n)
	}
}

func TestScheduler_SecondScheduleMidChainDoesNotRestart(t *testing.T) {
	store := calls.NewMemoryRepo()
	rec := endedCall(t, store)
	q := jobs.NewMemoryQueue(time.Now)
	provider := &fakeProvider{}
	s := NewScheduler(provider, store, calls.NewReconciler(store), jobs.NewEnqueuer(q), nil,
		Policy{BaseDelay: time.Second, MaxAttempts: 6}, nil)
	ctx := context.Background()

	if err := s.Schedule(ctx, rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	first := q.Pending(jobs.QueueProvider)[0]
	if err := q.Ack(ctx, first); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := s.HandlePoll(ctx, first); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// A second ended event arrives after attempt 1 ran.
	if err := s.Schedule(ctx, rec); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	drain(t, s, q)
	if provider.calls != 6 {
		t.Fatalf("expected 6 provider polls in total, got %d", provider.calls)
	}
	got, _ := store.Get(ctx, rec.ID)
	if got.TranscriptStatus != calls.TranscriptUnavailable {
		t.Fatalf("expected transcript unavailable, got %q", got.TranscriptStatus)
	}
	if err := s.Schedule(ctx, got); err != nil || len(q.Pending(jobs.QueueProvider)) != 0 {
		t.Fatalf("exhausted call must not be polled again: %v", err)
	}
}

func TestScheduler_TranscriptDeliveredByWebhookTriggersExtraction(t *testing.T) {
	store := calls.NewMemoryRepo()
	rec := endedCall(t, store)
	q := jobs.NewMemoryQueue(time.Now)
	ext := &recordingExtraction{}
	provider := &fakeProvider{}
	s := NewScheduler(provider, store, calls.NewReconciler(store), jobs.NewEnqueuer(q), ext, Policy{}, nil)
	ctx := context.Background()

	if err := s.Schedule(ctx, rec); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, _, err := store.Upsert(ctx, calls.Event{ExternalID: "vapi-1", Transcript: "User: schedule a demo"}, time.Now()); err != nil {
		t.Fatalf("late transcript: %v", err)
	}
	drain(t, s, q)

	if provider.calls != 0 {
		t.Fatalf("provider must not be polled once the transcript is stored, got %d", provider.calls)
	}
	if len(ext.got) != 1 || ext.got[0].ID != rec.ID {
		t.Fatalf("expected one extraction for %s, got %+v", rec.ID, ext.got)
	}
}
