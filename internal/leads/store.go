package leads

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("leads: not found")

// Store persists leads keyed by (tenant, phone).
type Store interface {
	// Upsert creates lead or merges it into the existing lead with the same
	// (TenantID, Phone), and replaces that lead's notes with note. It reports
	// whether a lead was created.
	Upsert(ctx context.Context, lead Lead, note Note) (Lead, bool, error)
	GetByPhone(ctx context.Context, tenantID, phone string) (Lead, error)
	Notes(ctx context.Context, leadID string) ([]Note, error)
}
