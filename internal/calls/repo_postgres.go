package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voice-platform/pkg/utils"
)

// PostgresRepo stores calls in the calls table.
//
// Required constraints:
// - PRIMARY KEY (id)
// - UNIQUE (external_id)
// - function call_status_wins(text, timestamptz, text, timestamptz) (see migrations)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const callColumns = `
id, external_id, tenant_id, direction, status, status_at,
customer_number, phone_number, assistant_id, lead_id, campaign_id,
started_at, ended_at, duration_seconds, cost,
transcript, transcript_status, recording_url, ended_reason, summary,
outcome, sentiment, analyzed_at, metadata, created_at, updated_at`

// upsertCallSQL mirrors Merge. The conflict target is substituted per identity path.
// $14 and $15 need explicit casts: COALESCE with an integer literal would type
// them int4 and truncate fractional cost and duration. The DO UPDATE guard
// leaves a record owned by another tenant untouched, which returns no row.
const upsertCallSQL = `
INSERT INTO calls (
	id, external_id, tenant_id, direction, status, status_at,
	customer_number, phone_number, assistant_id, lead_id, campaign_id,
	started_at, ended_at, duration_seconds, cost,
	transcript, transcript_status, recording_url, ended_reason, summary,
	metadata, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, COALESCE(NULLIF($5::text, ''), 'queued'), $6,
	$7, $8, $9, $10, $11,
	$12, $13, COALESCE($14::double precision, 0), COALESCE($15::double precision, 0),
	$16, CASE WHEN COALESCE($16, '') <> '' THEN 'available' ELSE 'pending' END, $17, $18, $19,
	$20, $21, $21
)
ON CONFLICT (%s) DO UPDATE SET
	external_id = COALESCE(calls.external_id, EXCLUDED.external_id),
	tenant_id = COALESCE(calls.tenant_id, EXCLUDED.tenant_id),
	direction = COALESCE(calls.direction, EXCLUDED.direction),
	lead_id = COALESCE(calls.lead_id, EXCLUDED.lead_id),
	campaign_id = COALESCE(calls.campaign_id, EXCLUDED.campaign_id),
	status = CASE WHEN $5::text <> '' AND call_status_wins($5::text, $6, calls.status, calls.status_at)
		THEN $5::text ELSE calls.status END,
	status_at = CASE WHEN $5::text <> '' AND call_status_wins($5::text, $6, calls.status, calls.status_at)
		THEN $6 ELSE calls.status_at END,
	customer_number = COALESCE(EXCLUDED.customer_number, calls.customer_number),
	phone_number = COALESCE(EXCLUDED.phone_number, calls.phone_number),
	assistant_id = COALESCE(EXCLUDED.assistant_id, calls.assistant_id),
	recording_url = COALESCE(EXCLUDED.recording_url, calls.recording_url),
	ended_reason = COALESCE(EXCLUDED.ended_reason, calls.ended_reason),
	summary = COALESCE(EXCLUDED.summary, calls.summary),
	started_at = LEAST(calls.started_at, EXCLUDED.started_at),
	ended_at = GREATEST(calls.ended_at, EXCLUDED.ended_at),
	duration_seconds = GREATEST(calls.duration_seconds, EXCLUDED.duration_seconds),
	cost = GREATEST(calls.cost, EXCLUDED.cost),
	transcript = CASE WHEN length(COALESCE(EXCLUDED.transcript, '')) > length(COALESCE(calls.transcript, ''))
		THEN EXCLUDED.transcript ELSE calls.transcript END,
	transcript_status = CASE WHEN COALESCE(EXCLUDED.transcript, '') <> '' OR COALESCE(calls.transcript, '') <> ''
		THEN 'available' ELSE calls.transcript_status END,
	metadata = calls.metadata || EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
WHERE calls.tenant_id IS NULL OR EXCLUDED.tenant_id IS NULL OR calls.tenant_id = EXCLUDED.tenant_id
RETURNING ` + callColumns + `, (xmax = 0) AS inserted
`

func (r *PostgresRepo) Upsert(ctx context.Context, ev Event, now time.Time) (CallRecord, bool, error) {
	if ev.ExternalID == "" && ev.InternalID == "" {
		return CallRecord{}, false, ErrNoCallIdentity
	}

	meta, err := utils.JSONB(ev.Metadata)
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("encode metadata: %w", err)
	}
	at := ev.At.UTC()
	if ev.At.IsZero() {
		at = now.UTC()
	}

	var (
		rec      CallRecord
		inserted bool
	)
	err = utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		id, err := r.resolveID(ctx, tx, ev)
		if err != nil {
			return err
		}
		target := "external_id"
		if ev.ExternalID == "" {
			target = "id"
		}
		row := tx.QueryRowContext(ctx, fmt.Sprintf(upsertCallSQL, target),
			id,
			utils.NullString(ev.ExternalID),
			utils.NullString(ev.TenantID),
			utils.NullString(string(ev.Direction)),
			string(ev.Status),
			at,
			utils.NullString(ev.CustomerNumber),
			utils.NullString(ev.PhoneNumber),
			utils.NullString(ev.AssistantID),
			utils.NullString(ev.LeadID),
			utils.NullString(ev.CampaignID),
			utils.NullTime(ev.StartedAt),
			utils.NullTime(ev.EndedAt),
			nullFloat(ev.DurationSeconds),
			nullFloat(ev.Cost),
			utils.NullString(ev.Transcript),
			utils.NullString(ev.RecordingURL),
			utils.NullString(ev.EndedReason),
			utils.NullString(ev.Summary),
			meta,
			now.UTC(),
		)
		rec, inserted, err = scanCall(row, true)
		if errors.Is(err, ErrNotFound) {
			return ErrTenantMismatch
		}
		return err
	})
	if err != nil {
		return CallRecord{}, false, err
	}
	return rec, inserted, nil
}

// resolveID attaches ev.ExternalID to a pre-created internal record when
// possible and returns the id to use if the upsert inserts.
func (r *PostgresRepo) resolveID(ctx context.Context, tx *sql.Tx, ev Event) (string, error) {
	if ev.InternalID == "" {
		return uuid.NewString(), nil
	}
	if ev.ExternalID != "" {
		const attach = `
UPDATE calls SET external_id = $2
WHERE id = $1 AND external_id IS NULL
  AND NOT EXISTS (SELECT 1 FROM calls c2 WHERE c2.external_id = $2)
`
		if _, err := tx.ExecContext(ctx, attach, ev.InternalID, ev.ExternalID); err != nil {
			return "", fmt.Errorf("attach external id: %w", err)
		}
	}

	const q = `SELECT external_id FROM calls WHERE id = $1`
	var ext sql.NullString
	err := tx.QueryRowContext(ctx, q, ev.InternalID).Scan(&ext)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ev.InternalID, nil
	case err != nil:
		return "", err
	}
	// The internal record is bound to another provider call, or the external id
	// already lives on a different row.
	if ev.ExternalID != "" && ext.String != ev.ExternalID {
		return uuid.NewString(), nil
	}
	return ev.InternalID, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	rec, _, err := scanCall(r.db.QueryRowContext(ctx, q, id), false)
	return rec, err
}

func (r *PostgresRepo) GetByExternalID(ctx context.Context, externalID string) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE external_id = $1`
	rec, _, err := scanCall(r.db.QueryRowContext(ctx, q, externalID), false)
	return rec, err
}

func (r *PostgresRepo) SetTranscriptStatus(ctx context.Context, id string, status TranscriptStatus) error {
	const q = `
UPDATE calls SET transcript_status = $2, updated_at = now()
WHERE id = $1 AND (COALESCE(transcript, '') = '' OR $2 = 'available')
`
	res, err := r.db.ExecContext(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepo) ClaimTranscriptPoll(ctx context.Context, id string) (bool, error) {
	const q = `
UPDATE calls SET transcript_status = 'polling', updated_at = now()
WHERE id = $1 AND transcript_status = 'pending' AND COALESCE(transcript, '') = ''
`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresRepo) SaveAnalysis(ctx context.Context, id string, a Analysis) (CallRecord, error) {
	meta, err := utils.JSONB(a.Metadata)
	if err != nil {
		return CallRecord{}, fmt.Errorf("encode metadata: %w", err)
	}
	q := `
UPDATE calls SET
	outcome = COALESCE($2, outcome),
	sentiment = COALESCE($3, sentiment),
	summary = COALESCE(summary, $4),
	lead_id = COALESCE(lead_id, $5),
	metadata = metadata || $6::jsonb,
	analyzed_at = $7,
	updated_at = $7
WHERE id = $1
RETURNING ` + callColumns
	row := r.db.QueryRowContext(ctx, q,
		id,
		utils.NullString(a.Outcome),
		utils.NullString(a.Sentiment),
		utils.NullString(a.Summary),
		utils.NullString(a.LeadID),
		meta,
		a.AnalyzedAt.UTC(),
	)
	rec, _, err := scanCall(row, false)
	return rec, err
}

func (r *PostgresRepo) ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]CallRecord, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE tenant_id = $1 AND campaign_id = $2
ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, _, err := scanCall(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner, withInserted bool) (CallRecord, bool, error) {
	var (
		rec                                                       CallRecord
		ext, tenant, direction                                    sql.NullString
		customer, phone, assistant, lead, campaign                sql.NullString
		transcript, recording, endedReason, summary, outcome, snt sql.NullString
		statusAt, startedAt, endedAt, analyzedAt                  sql.NullTime
		meta                                                      []byte
		inserted                                                  bool
	)
	dest := []any{
		&rec.ID, &ext, &tenant, &direction, &rec.Status, &statusAt,
		&customer, &phone, &assistant, &lead, &campaign,
		&startedAt, &endedAt, &rec.DurationSeconds, &rec.Cost,
		&transcript, &rec.TranscriptStatus, &recording, &endedReason, &summary,
		&outcome, &snt, &analyzedAt, &meta, &rec.CreatedAt, &rec.UpdatedAt,
	}
	if withInserted {
		dest = append(dest, &inserted)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, false, ErrNotFound
		}
		return CallRecord{}, false, err
	}

	rec.ExternalID = ext.String
	rec.TenantID = tenant.String
	rec.Direction = Direction(direction.String)
	rec.CustomerNumber = customer.String
	rec.PhoneNumber = phone.String
	rec.AssistantID = assistant.String
	rec.LeadID = lead.String
	rec.CampaignID = campaign.String
	rec.Transcript = transcript.String
	rec.RecordingURL = recording.String
	rec.EndedReason = endedReason.String
	rec.Summary = summary.String
	rec.Outcome = outcome.String
	rec.Sentiment = snt.String
	rec.StatusAt = utils.TimePtr(statusAt)
	rec.StartedAt = utils.TimePtr(startedAt)
	rec.EndedAt = utils.TimePtr(endedAt)
	rec.AnalyzedAt = utils.TimePtr(analyzedAt)

	m, err := utils.ScanJSONB(meta)
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("decode metadata: %w", err)
	}
	rec.Metadata = m
	return rec, inserted, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
