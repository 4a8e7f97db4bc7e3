package tenancy

import (
	"context"
	"errors"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Settings are the resolved per-tenant credentials the pipeline needs.
type Settings struct {
	WebhookSecret   string
	VapiAPIKey      string
	OpenAIAPIKey    string
	TwilioAuthToken string
}

// SettingsRecord is what the settings store holds for one tenant: dedicated
// columns plus the legacy integration blob written by older clients.
type SettingsRecord struct {
	TenantID    string
	Columns     Settings
	Integration map[string]any
}

type SettingsStore interface {
	GetSettings(ctx context.Context, tenantID string) (SettingsRecord, error)
}

// SettingsResolver collapses every storage location of a credential into one
// value. Precedence per field: tenant column, legacy integration blob, platform default.
type SettingsResolver struct {
	store    SettingsStore
	defaults Settings
	cache    *gocache.Cache
}

func NewSettingsResolver(store SettingsStore, defaults Settings, ttl time.Duration) *SettingsResolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SettingsResolver{
		store:    store,
		defaults: defaults,
		cache:    gocache.New(ttl, 2*ttl),
	}
}

// Resolve returns settings for tenantID. An empty tenant gets platform defaults.
// On store errors the defaults are returned together with the error.
func (r *SettingsResolver) Resolve(ctx context.Context, tenantID string) (Settings, error) {
	if tenantID == "" || r.store == nil {
		return r.defaults, nil
	}
	if v, ok := r.cache.Get(tenantID); ok {
		return v.(Settings), nil
	}

	rec, err := r.store.GetSettings(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return r.defaults, err
	}
	out := Settings{
		WebhookSecret:   first(rec.Columns.WebhookSecret, legacy(rec.Integration, "vapi.webhookSecret", "vapiWebhookSecret", "webhookSecret"), r.defaults.WebhookSecret),
		VapiAPIKey:      first(rec.Columns.VapiAPIKey, legacy(rec.Integration, "vapi.apiKey", "vapiApiKey", "vapi_api_key"), r.defaults.VapiAPIKey),
		OpenAIAPIKey:    first(rec.Columns.OpenAIAPIKey, legacy(rec.Integration, "openai.apiKey", "openaiApiKey", "openai_api_key"), r.defaults.OpenAIAPIKey),
		TwilioAuthToken: first(rec.Columns.TwilioAuthToken, legacy(rec.Integration, "twilio.authToken", "twilioAuthToken"), r.defaults.TwilioAuthToken),
	}
	r.cache.SetDefault(tenantID, out)
	return out, nil
}

// Invalidate drops a cached entry after the tenant's settings change.
func (r *SettingsResolver) Invalidate(tenantID string) {
	r.cache.Delete(tenantID)
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// legacy looks up the first present path; dotted paths descend into nested objects.
func legacy(blob map[string]any, paths ...string) string {
	for _, p := range paths {
		var cur any = blob
		for _, part := range strings.Split(p, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = m[part]
		}
		if s, ok := cur.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
