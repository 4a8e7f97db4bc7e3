package events

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-platform/pkg/utils"
)

// PostgresRepo stores events in webhook_events.
//
// It assumes UNIQUE (idempotency_key); Append relies on it instead of a lookup.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const eventColumns = `id, idempotency_key, provider, type, call_external_id, tenant_id, payload, status, error, attempts, received_at, processed_at`

func (r *PostgresRepo) Append(ctx context.Context, e WebhookEvent) (bool, error) {
	const q = `
INSERT INTO webhook_events (id, idempotency_key, provider, type, call_external_id, tenant_id, payload, status, attempts, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id
`
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var id string
	err := r.db.QueryRowContext(ctx, q,
		e.ID,
		e.IdempotencyKey,
		string(e.Provider),
		e.Type,
		utils.NullString(e.CallExternalID),
		utils.NullString(e.TenantID),
		payload,
		string(e.Status),
		e.ReceivedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (WebhookEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM webhook_events WHERE id = $1`
	return scanEvent(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, status Status, errText string, at time.Time) error {
	const q = `
UPDATE webhook_events SET
	status = $2,
	error = $3,
	attempts = attempts + CASE WHEN $2 = 'received' THEN 1 ELSE 0 END,
	processed_at = CASE WHEN $2 = 'received' THEN NULL ELSE $4::timestamptz END
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, string(status), utils.NullString(errText), at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByStatus(ctx context.Context, tenantID string, status Status, limit int) ([]WebhookEvent, error) {
	q := `SELECT ` + eventColumns + `
FROM webhook_events
WHERE status = $1 AND ($2 = '' OR tenant_id = $2)
ORDER BY received_at ASC
LIMIT $3`
	return r.query(ctx, q, string(status), tenantID, limit)
}

func (r *PostgresRepo) ListStale(ctx context.Context, receivedBefore time.Time, limit int) ([]WebhookEvent, error) {
	q := `SELECT ` + eventColumns + `
FROM webhook_events
WHERE status = 'received' AND received_at < $1
ORDER BY received_at ASC
LIMIT $2`
	return r.query(ctx, q, receivedBefore.UTC(), limit)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WebhookEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (WebhookEvent, error) {
	var (
		e                    WebhookEvent
		callID, tenant, errT sql.NullString
		processedAt          sql.NullTime
	)
	if err := row.Scan(
		&e.ID,
		&e.IdempotencyKey,
		&e.Provider,
		&e.Type,
		&callID,
		&tenant,
		&e.Payload,
		&e.Status,
		&errT,
		&e.Attempts,
		&e.ReceivedAt,
		&processedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WebhookEvent{}, ErrNotFound
		}
		return WebhookEvent{}, err
	}
	e.CallExternalID = callID.String
	e.TenantID = tenant.String
	e.Error = errT.String
	e.ProcessedAt = utils.TimePtr(processedAt)
	return e, nil
}
