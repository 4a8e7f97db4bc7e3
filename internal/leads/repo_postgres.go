package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voice-platform/pkg/utils"
)

// PostgresRepo stores leads in leads (UNIQUE tenant_id, phone) and their
// notes in lead_notes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const leadColumns = `
id, tenant_id, phone, first_name, last_name, email, street, city, state, postal_code, country,
company, title, score, quality, status, source_call_id, campaign_id, custom_fields, created_at, updated_at`

// upsertLeadSQL mirrors MergeLead.
const upsertLeadSQL = `
INSERT INTO leads (
	id, tenant_id, phone, first_name, last_name, email, street, city, state, postal_code, country,
	company, title, score, quality, status, source_call_id, campaign_id, custom_fields, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
ON CONFLICT (tenant_id, phone) DO UPDATE SET
	first_name = COALESCE(EXCLUDED.first_name, leads.first_name),
	last_name = COALESCE(EXCLUDED.last_name, leads.last_name),
	email = COALESCE(EXCLUDED.email, leads.email),
	street = COALESCE(EXCLUDED.street, leads.street),
	city = COALESCE(EXCLUDED.city, leads.city),
	state = COALESCE(EXCLUDED.state, leads.state),
	postal_code = COALESCE(EXCLUDED.postal_code, leads.postal_code),
	country = COALESCE(EXCLUDED.country, leads.country),
	company = COALESCE(EXCLUDED.company, leads.company),
	title = COALESCE(EXCLUDED.title, leads.title),
	score = CASE WHEN EXCLUDED.score > 0 THEN EXCLUDED.score ELSE leads.score END,
	quality = CASE WHEN EXCLUDED.score > 0 THEN EXCLUDED.quality ELSE leads.quality END,
	source_call_id = COALESCE(EXCLUDED.source_call_id, leads.source_call_id),
	campaign_id = COALESCE(EXCLUDED.campaign_id, leads.campaign_id),
	custom_fields = leads.custom_fields || EXCLUDED.custom_fields,
	updated_at = EXCLUDED.updated_at
RETURNING ` + leadColumns + `, (xmax = 0) AS inserted
`

func (r *PostgresRepo) Upsert(ctx context.Context, lead Lead, note Note) (Lead, bool, error) {
	custom, err := utils.JSONB(lead.CustomFields)
	if err != nil {
		return Lead{}, false, fmt.Errorf("encode custom fields: %w", err)
	}

	var (
		out      Lead
		inserted bool
	)
	err = utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, upsertLeadSQL,
			lead.ID, lead.TenantID, lead.Phone,
			utils.NullString(lead.FirstName),
			utils.NullString(lead.LastName),
			utils.NullString(lead.Email),
			utils.NullString(lead.Street),
			utils.NullString(lead.City),
			utils.NullString(lead.State),
			utils.NullString(lead.PostalCode),
			utils.NullString(lead.Country),
			utils.NullString(lead.Company),
			utils.NullString(lead.Title),
			lead.Score,
			utils.NullString(string(lead.Quality)),
			lead.Status,
			utils.NullString(lead.SourceCallID),
			utils.NullString(lead.CampaignID),
			custom,
			lead.UpdatedAt.UTC(),
		)
		var err error
		out, inserted, err = scanLead(row, true)
		if err != nil {
			return fmt.Errorf("upsert lead: %w", err)
		}

		// Notes are replaced, never appended.
		if _, err := tx.ExecContext(ctx, `DELETE FROM lead_notes WHERE lead_id = $1`, out.ID); err != nil {
			return fmt.Errorf("clear notes: %w", err)
		}
		const ins = `
INSERT INTO lead_notes (id, lead_id, tenant_id, kind, body, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
		if _, err := tx.ExecContext(ctx, ins, note.ID, out.ID, out.TenantID, note.Kind, note.Body, note.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return nil
	})
	if err != nil {
		return Lead{}, false, err
	}
	return out, inserted, nil
}

func (r *PostgresRepo) GetByPhone(ctx context.Context, tenantID, phone string) (Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND phone = $2`
	l, _, err := scanLead(r.db.QueryRowContext(ctx, q, tenantID, phone), false)
	return l, err
}

func (r *PostgresRepo) Notes(ctx context.Context, leadID string) ([]Note, error) {
	const q = `
SELECT id, lead_id, tenant_id, kind, body, created_at
FROM lead_notes
WHERE lead_id = $1
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.LeadID, &n.TenantID, &n.Kind, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner, withInserted bool) (Lead, bool, error) {
	var (
		l                                                  Lead
		first, last, email, street, city, state, postal    sql.NullString
		country, company, title, quality, sourceCall, camp sql.NullString
		custom                                             []byte
		inserted                                           bool
	)
	dest := []any{
		&l.ID, &l.TenantID, &l.Phone, &first, &last, &email, &street, &city, &state, &postal, &country,
		&company, &title, &l.Score, &quality, &l.Status, &sourceCall, &camp, &custom, &l.CreatedAt, &l.UpdatedAt,
	}
	if withInserted {
		dest = append(dest, &inserted)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, false, ErrNotFound
		}
		return Lead{}, false, err
	}
	l.FirstName, l.LastName, l.Email = first.String, last.String, email.String
	l.Street, l.City, l.State, l.PostalCode, l.Country = street.String, city.String, state.String, postal.String, country.String
	l.Company, l.Title = company.String, title.String
	l.Quality = Quality(quality.String)
	l.SourceCallID, l.CampaignID = sourceCall.String, camp.String
	fields, err := utils.ScanJSONB(custom)
	if err != nil {
		return Lead{}, false, fmt.Errorf("decode custom fields: %w", err)
	}
	l.CustomFields = fields
	return l, inserted, nil
}
