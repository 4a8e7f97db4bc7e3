// Package transcripts polls the voice provider for transcripts that were not
// delivered with the end-of-call event.
package transcripts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-platform/internal/calls"
	"voice-platform/internal/jobs"
	"voice-platform/internal/metrics"
	"voice-platform/internal/telephony"
	"voice-platform/pkg/logger"
)

// KindPoll is one transcript polling attempt on the provider queue.
const KindPoll = "transcript.poll"

// Poll is the job payload. Attempt is 1-based.
type Poll struct {
	CallID   string `json:"call_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Attempt  int    `json:"attempt"`
}

type CallFetcher interface {
	GetCall(ctx context.Context, tenantID, callID string) (telephony.CallDetail, error)
}

type CallStore interface {
	Get(ctx context.Context, id string) (calls.CallRecord, error)
	SetTranscriptStatus(ctx context.Context, id string, status calls.TranscriptStatus) error
	ClaimTranscriptPoll(ctx context.Context, id string) (bool, error)
}

type Reconciler interface {
	Apply(ctx context.Context, ev calls.Event) (calls.Outcome, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, s jobs.Spec) (bool, error)
}

// ExtractionQueue receives calls whose transcript just became available.
type ExtractionQueue interface {
	EnqueueExtraction(ctx context.Context, rec calls.CallRecord) error
}

type Policy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// Delay returns the wait before attempt n: BaseDelay doubled per attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return jobs.Backoff(p.BaseDelay, 0, attempt)
}

// Scheduler runs bounded, self-rescheduling transcript polls. Each attempt is
// a separate durable job.
type Scheduler struct {
	provider   CallFetcher
	store      CallStore
	reconciler Reconciler
	jobs       Enqueuer
	extraction ExtractionQueue
	policy     Policy
	metrics    *metrics.Metrics
}

func NewScheduler(provider CallFetcher, store CallStore, reconciler Reconciler, q Enqueuer, extraction ExtractionQueue, policy Policy, m *metrics.Metrics) *Scheduler {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 5 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 6
	}
	return &Scheduler{
		provider:   provider,
		store:      store,
		reconciler: reconciler,
		jobs:       q,
		extraction: extraction,
		policy:     policy,
		metrics:    m,
	}
}

// Schedule starts the poll chain for rec. A call gets at most one chain: once
// claimed it stays in polling until a transcript arrives or the budget is spent.
func (s *Scheduler) Schedule(ctx context.Context, rec calls.CallRecord) error {
	claimed, err := s.store.ClaimTranscriptPoll(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("claim transcript poll: %w", err)
	}
	if !claimed {
		logger.From(ctx).Debug("transcript poll already running", "call_id", rec.ID)
		return nil
	}
	if err := s.enqueue(ctx, Poll{CallID: rec.ID, TenantID: rec.TenantID, Attempt: 1}); err != nil {
		if rerr := s.store.SetTranscriptStatus(ctx, rec.ID, calls.TranscriptPending); rerr != nil {
			logger.From(ctx).Error("transcript poll: release claim failed", "call_id", rec.ID, "err", rerr)
		}
		return err
	}
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, p Poll) error {
	_, err := s.jobs.Enqueue(ctx, jobs.Spec{
		Queue:       jobs.QueueProvider,
		Kind:        KindPoll,
		ID:          fmt.Sprintf("transcript:%s:%d", p.CallID, p.Attempt),
		Payload:     p,
		Delay:       s.policy.Delay(p.Attempt),
		MaxAttempts: 3,
	})
	return err
}

// HandlePoll runs one attempt. A provider error counts as a miss so the
// attempt budget stays a hard bound.
func (s *Scheduler) HandlePoll(ctx context.Context, job jobs.Job) error {
	var p Poll
	if err := job.Decode(&p); err != nil {
		return err
	}
	log := logger.From(ctx).With("call_id", p.CallID, "tenant_id", p.TenantID, "poll_attempt", p.Attempt)

	rec, err := s.store.Get(ctx, p.CallID)
	if errors.Is(err, calls.ErrNotFound) {
		return jobs.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("load call: %w", err)
	}
	if rec.Transcript != "" {
		// Delivered by a webhook since the poll was scheduled.
		s.metrics.RecordTranscriptPoll("found")
		if s.extraction != nil && rec.AnalyzedAt == nil {
			if err := s.extraction.EnqueueExtraction(ctx, rec); err != nil {
				return fmt.Errorf("enqueue extraction: %w", err)
			}
		}
		return nil
	}

	if rec.ExternalID != "" {
		detail, ferr := s.provider.GetCall(ctx, p.TenantID, rec.ExternalID)
		switch {
		case ferr != nil:
			log.Warn("transcript poll: provider fetch failed", "err", ferr)
		default:
			ev := detail.LifecycleEvent()
			ev.InternalID = rec.ID
			ev.ExternalID = rec.ExternalID
			out, err := s.reconciler.Apply(ctx, ev)
			if err != nil {
				return fmt.Errorf("apply call detail: %w", err)
			}
			if out.TranscriptPresent {
				s.metrics.RecordTranscriptPoll("found")
				log.Info("transcript poll: transcript found")
				if s.extraction != nil && out.Record.AnalyzedAt == nil {
					if err := s.extraction.EnqueueExtraction(ctx, out.Record); err != nil {
						return fmt.Errorf("enqueue extraction: %w", err)
					}
				}
				return nil
			}
		}
	}

	if p.Attempt >= s.policy.MaxAttempts {
		s.metrics.RecordTranscriptPoll("exhausted")
		log.Warn("transcript poll: giving up, transcript unavailable")
		return s.store.SetTranscriptStatus(ctx, rec.ID, calls.TranscriptUnavailable)
	}

	s.metrics.RecordTranscriptPoll("retry")
	next := Poll{CallID: p.CallID, TenantID: p.TenantID, Attempt: p.Attempt + 1}
	if err := s.enqueue(ctx, next); err != nil {
		return fmt.Errorf("schedule attempt %d: %w", next.Attempt, err)
	}
	return nil
}
