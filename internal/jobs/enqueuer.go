package jobs

import (
	"context"
	"time"
)

// Spec describes a job to enqueue.
type Spec struct {
	Queue       string
	Kind        string
	ID          string
	Payload     any
	Delay       time.Duration
	MaxAttempts int
}

// Enqueuer builds and enqueues jobs against a Queue.
type Enqueuer struct {
	q     Queue
	clock func() time.Time
}

func NewEnqueuer(q Queue) *Enqueuer {
	return &Enqueuer{q: q, clock: time.Now}
}

// Enqueue reports false when a job with the same id is already pending.
func (e *Enqueuer) Enqueue(ctx context.Context, s Spec) (bool, error) {
	job, err := New(s.Queue, s.Kind, s.ID, s.Payload, s.Delay, e.clock())
	if err != nil {
		return false, err
	}
	if s.MaxAttempts > 0 {
		job.MaxAttempts = s.MaxAttempts
	}
	return e.q.Enqueue(ctx, job)
}
