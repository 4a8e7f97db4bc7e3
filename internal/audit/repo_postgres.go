package audit

import (
	"context"
	"database/sql"

	"voice-platform/pkg/utils"
)

// PostgresRepo appends to audit_entries. The table should carry an INSERT-only policy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO audit_entries (id, tenant_id, action, actor_user_id, actor_role, ip_address, call_id, event_id, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		string(e.Action),
		utils.NullString(e.ActorUserID),
		utils.NullString(e.ActorRole),
		utils.NullString(e.IPAddress),
		utils.NullString(e.CallID),
		utils.NullString(e.EventID),
		utils.NullString(e.Message),
		e.CreatedAt.UTC(),
	)
	return err
}
