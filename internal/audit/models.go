package audit

import "time"

// Entry is an append-only record of an operator action.
//
// Invariants:
// - Entries are never updated or deleted.
// - tenant_id is required.
// - Audit writes are best-effort; callers must not fail the action on audit errors.
type Entry struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Action Action `json:"action" db:"action"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers, depending on the action.
	CallID  string `json:"call_id,omitempty" db:"call_id"`
	EventID string `json:"event_id,omitempty" db:"event_id"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionWebhookReplay    Action = "webhook_replay"
	ActionOutboundDispatch Action = "outbound_dispatch"
)
