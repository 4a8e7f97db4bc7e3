// Package appointments records meetings proposed during qualified calls.
package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const StatusProposed = "proposed"

var (
	ErrNotFound       = errors.New("appointments: not found")
	ErrInvalidRequest = errors.New("appointments: tenant and call are required")
)

// Appointment is at most one per source call.
type Appointment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	LeadID    string    `json:"lead_id,omitempty"`
	CallID    string    `json:"call_id"`
	Date      string    `json:"date,omitempty"`
	Time      string    `json:"time,omitempty"`
	Type      string    `json:"type,omitempty"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	// Insert stores a and reports false when the call already has one.
	Insert(ctx context.Context, a Appointment) (bool, error)
	GetByCall(ctx context.Context, callID string) (Appointment, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Create stores a proposed appointment. Replays of the same call return the
// existing one.
func (s *Service) Create(ctx context.Context, a Appointment) (Appointment, bool, error) {
	a.TenantID = strings.TrimSpace(a.TenantID)
	a.CallID = strings.TrimSpace(a.CallID)
	if a.TenantID == "" || a.CallID == "" {
		return Appointment{}, false, ErrInvalidRequest
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusProposed
	}
	if a.Type == "" {
		a.Type = "call"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock().UTC()
	}

	created, err := s.repo.Insert(ctx, a)
	if err != nil {
		return Appointment{}, false, err
	}
	if created {
		return a, true, nil
	}
	cur, err := s.repo.GetByCall(ctx, a.CallID)
	return cur, false, err
}

func (s *Service) GetByCall(ctx context.Context, callID string) (Appointment, error) {
	return s.repo.GetByCall(ctx, callID)
}
