package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit entries.
// It is append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Entry) error
}

// Service records operator actions taken through the ops API.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Actor identifies who performed an action.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || e.Action == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogReplay records a manual webhook replay.
func (s *Service) LogReplay(ctx context.Context, tenantID string, actor Actor, eventID string) error {
	return s.Append(ctx, Entry{
		TenantID:    tenantID,
		Action:      ActionWebhookReplay,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		EventID:     eventID,
		Message:     "webhook event replayed",
	})
}

// LogOutboundDispatch records an operator-initiated outbound call.
func (s *Service) LogOutboundDispatch(ctx context.Context, tenantID string, actor Actor, callID string) error {
	return s.Append(ctx, Entry{
		TenantID:    tenantID,
		Action:      ActionOutboundDispatch,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		CallID:      callID,
		Message:     "outbound call dispatched",
	})
}
