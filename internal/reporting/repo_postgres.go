package reporting

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo stores aggregates in campaign_metrics (PRIMARY KEY tenant_id, campaign_id).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) UpsertCampaignMetrics(ctx context.Context, m CampaignMetrics) error {
	const q = `
INSERT INTO campaign_metrics (tenant_id, campaign_id, attempted, connected, completed, qualified, total_duration_seconds, total_cost, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (tenant_id, campaign_id) DO UPDATE SET
	attempted = EXCLUDED.attempted,
	connected = EXCLUDED.connected,
	completed = EXCLUDED.completed,
	qualified = EXCLUDED.qualified,
	total_duration_seconds = EXCLUDED.total_duration_seconds,
	total_cost = EXCLUDED.total_cost,
	updated_at = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q,
		m.TenantID, m.CampaignID,
		m.Attempted, m.Connected, m.Completed, m.Qualified,
		m.TotalDurationSeconds, m.TotalCost,
		m.UpdatedAt.UTC(),
	)
	return err
}

func (r *PostgresRepo) GetCampaignMetrics(ctx context.Context, tenantID, campaignID string) (CampaignMetrics, error) {
	const q = `
SELECT tenant_id, campaign_id, attempted, connected, completed, qualified, total_duration_seconds, total_cost, updated_at
FROM campaign_metrics
WHERE tenant_id = $1 AND campaign_id = $2
`
	var m CampaignMetrics
	err := r.db.QueryRowContext(ctx, q, tenantID, campaignID).Scan(
		&m.TenantID, &m.CampaignID,
		&m.Attempted, &m.Connected, &m.Completed, &m.Qualified,
		&m.TotalDurationSeconds, &m.TotalCost,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CampaignMetrics{}, ErrNotFound
	}
	return m, err
}
