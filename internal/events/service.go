package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for webhook events.
//
// Append must be insert-if-absent on the idempotency key.
type Repository interface {
	Append(ctx context.Context, e WebhookEvent) (bool, error)
	Get(ctx context.Context, id string) (WebhookEvent, error)
	SetStatus(ctx context.Context, id string, status Status, errText string, at time.Time) error
	ListByStatus(ctx context.Context, tenantID string, status Status, limit int) ([]WebhookEvent, error)
	ListStale(ctx context.Context, receivedBefore time.Time, limit int) ([]WebhookEvent, error)
}

var (
	ErrInvalidEvent = errors.New("events: invalid event")
	ErrNotFound     = errors.New("events: not found")
)

// Service is the event store used for idempotency and replay.
type Service struct {
	repo   Repository
	clock  func() time.Time
	window time.Duration
}

func NewService(repo Repository, window time.Duration) *Service {
	if window < time.Second {
		window = time.Minute
	}
	return &Service{repo: repo, clock: time.Now, window: window}
}

// IdempotencyKey derives the dedupe key for an event.
//
// A provider-supplied event id is used as-is. Otherwise the key is built from
// type, call id and the occurrence time truncated to window, so redeliveries
// inside the same window collapse.
func IdempotencyKey(provider Provider, eventID, eventType, callID string, at time.Time, window time.Duration) string {
	if id := strings.TrimSpace(eventID); id != "" {
		return fmt.Sprintf("evt:%s:%s", provider, id)
	}
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	bucket := at.Unix() - at.Unix()%secs
	return fmt.Sprintf("syn:%s:%s:%s:%d", provider, eventType, callID, bucket)
}

// Key derives the idempotency key using the service window.
func (s *Service) Key(provider Provider, eventID, eventType, callID string, at time.Time) string {
	if at.IsZero() {
		at = s.clock()
	}
	return IdempotencyKey(provider, eventID, eventType, callID, at, s.window)
}

// Record appends e and reports whether it was new. A false result means the
// event was already received and must not be processed again.
func (s *Service) Record(ctx context.Context, e WebhookEvent) (WebhookEvent, bool, error) {
	if s.repo == nil {
		return WebhookEvent{}, false, errors.New("events: repository not configured")
	}
	if e.IdempotencyKey == "" || e.Provider == "" || e.Type == "" {
		return WebhookEvent{}, false, ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = s.clock().UTC()
	}
	e.Status = StatusReceived

	inserted, err := s.repo.Append(ctx, e)
	if err != nil {
		return WebhookEvent{}, false, err
	}
	return e, inserted, nil
}

func (s *Service) MarkProcessed(ctx context.Context, id string) error {
	return s.repo.SetStatus(ctx, id, StatusProcessed, "", s.clock().UTC())
}

func (s *Service) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.SetStatus(ctx, id, StatusFailed, msg, s.clock().UTC())
}

// Reset returns an event to received so it can be replayed.
func (s *Service) Reset(ctx context.Context, id string) error {
	return s.repo.SetStatus(ctx, id, StatusReceived, "", s.clock().UTC())
}

func (s *Service) Get(ctx context.Context, id string) (WebhookEvent, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, tenantID string, status Status, limit int) ([]WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByStatus(ctx, tenantID, status, limit)
}

// ListStale returns events still in received state after olderThan.
func (s *Service) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListStale(ctx, s.clock().UTC().Add(-olderThan), limit)
}
