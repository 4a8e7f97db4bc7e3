package appointments

import (
	"context"
	"database/sql"
	"errors"

	"voice-platform/pkg/utils"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Insert(ctx context.Context, a Appointment) (bool, error) {
	const q = `
INSERT INTO appointments (id, tenant_id, lead_id, call_id, date, time, type, status, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (call_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		a.ID, a.TenantID, utils.NullString(a.LeadID), a.CallID,
		utils.NullString(a.Date), utils.NullString(a.Time), utils.NullString(a.Type),
		a.Status, utils.NullString(a.Notes), a.CreatedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepo) GetByCall(ctx context.Context, callID string) (Appointment, error) {
	const q = `
SELECT id, tenant_id, COALESCE(lead_id, ''), call_id, COALESCE(date, ''), COALESCE(time, ''),
	COALESCE(type, ''), status, COALESCE(notes, ''), created_at
FROM appointments
WHERE call_id = $1
`
	var a Appointment
	err := r.db.QueryRowContext(ctx, q, callID).Scan(
		&a.ID, &a.TenantID, &a.LeadID, &a.CallID, &a.Date, &a.Time,
		&a.Type, &a.Status, &a.Notes, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}
