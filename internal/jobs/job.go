package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue names.
const (
	QueueWebhooks   = "webhooks"
	QueueExtraction = "extraction"
	QueueProvider   = "provider"
)

// Job is a unit of background work. Attempt counts failed runs so far.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	DueAt       time.Time       `json:"due_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// Queue is a durable delayed-delivery queue with leases.
type Queue interface {
	// Enqueue stores job unless a job with the same id is already pending.
	Enqueue(ctx context.Context, job Job) (bool, error)
	// Reserve takes one due job and hides it for lease. A job whose lease
	// expires without Ack becomes due again.
	Reserve(ctx context.Context, queue string, lease time.Duration) (Job, bool, error)
	Ack(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job, delay time.Duration, cause error) error
	Dead(ctx context.Context, job Job, cause error) error
}

var ErrInvalidJob = errors.New("jobs: invalid job")

// New builds a job with a JSON payload. An empty id gets a random one.
func New(queue, kind, id string, payload any, delay time.Duration, now time.Time) (Job, error) {
	if queue == "" || kind == "" {
		return Job{}, ErrInvalidJob
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode payload: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	now = now.UTC()
	return Job{
		ID:          id,
		Queue:       queue,
		Kind:        kind,
		Payload:     raw,
		MaxAttempts: 5,
		EnqueuedAt:  now,
		DueAt:       now.Add(delay),
	}, nil
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", j.Kind, err))
	}
	return nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job is dead-lettered at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Backoff returns base * 2^(attempt-1), capped at max. attempt is 1-based.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
