package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voice-platform/pkg/utils"
)

// PostgresRepo reads phone_numbers and tenant_settings.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) TenantForNumber(ctx context.Context, e164 string) (string, error) {
	const q = `SELECT tenant_id FROM phone_numbers WHERE e164 = $1`
	var tenantID string
	if err := r.db.QueryRowContext(ctx, q, e164).Scan(&tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return tenantID, nil
}

func (r *PostgresRepo) GetSettings(ctx context.Context, tenantID string) (SettingsRecord, error) {
	const q = `
SELECT tenant_id, webhook_secret, vapi_api_key, openai_api_key, twilio_auth_token, integration
FROM tenant_settings
WHERE tenant_id = $1
`
	var (
		rec                          SettingsRecord
		secret, vapi, openai, twilio sql.NullString
		integration                  []byte
	)
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(
		&rec.TenantID,
		&secret,
		&vapi,
		&openai,
		&twilio,
		&integration,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SettingsRecord{}, ErrNotFound
		}
		return SettingsRecord{}, err
	}
	rec.Columns = Settings{
		WebhookSecret:   secret.String,
		VapiAPIKey:      vapi.String,
		OpenAIAPIKey:    openai.String,
		TwilioAuthToken: twilio.String,
	}
	blob, err := utils.ScanJSONB(integration)
	if err != nil {
		return SettingsRecord{}, fmt.Errorf("decode integration: %w", err)
	}
	rec.Integration = blob
	return rec, nil
}
