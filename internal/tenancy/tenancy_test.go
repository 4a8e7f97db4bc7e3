package tenancy

import (
	"context"
	"testing"
	"time"

	"voice-platform/internal/calls"
)

func TestResolver_Order(t *testing.T) {
	ctx := context.Background()
	store := calls.NewMemoryRepo()
	rec := calls.NewReconciler(store)
	if _, err := rec.Apply(ctx, calls.Event{ExternalID: "ext-1", TenantID: "from-call"}); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	dir := NewMemoryRepo()
	dir.AddNumber("+14155552671", "from-phone")

	r := NewResolver(rec, dir, "US")

	got := r.Resolve(ctx, Input{TenantHint: "from-hint", ExternalCallID: "new-call"})
	if got.TenantID != "from-hint" || got.Source != SourceHint || got.HintConflict {
		t.Fatalf("expected hint to win: %+v", got)
	}

	got = r.Resolve(ctx, Input{TenantHint: "from-call", ExternalCallID: "ext-1"})
	if got.TenantID != "from-call" || got.Source != SourceHint || got.CallID == "" || got.HintConflict {
		t.Fatalf("expected matching hint with call id: %+v", got)
	}

	got = r.Resolve(ctx, Input{ExternalCallID: "ext-1", Numbers: []string{"+14155552671"}})
	if got.TenantID != "from-call" || got.Source != SourceCall {
		t.Fatalf("expected call record to win over phone: %+v", got)
	}

	got = r.Resolve(ctx, Input{ExternalCallID: "unknown", Numbers: []string{"", "(415) 555-2671"}})
	if got.TenantID != "from-phone" || got.Source != SourcePhone {
		t.Fatalf("expected phone mapping: %+v", got)
	}

	got = r.Resolve(ctx, Input{ExternalCallID: "unknown", Numbers: []string{"+442079460958"}})
	if got.Known() || got.Source != SourceUnknown {
		t.Fatalf("expected unknown: %+v", got)
	}
}

func TestResolver_StoredOwnerWinsOverForeignHint(t *testing.T) {
	ctx := context.Background()
	rec := calls.NewReconciler(calls.NewMemoryRepo())
	seeded, err := rec.Apply(ctx, calls.Event{ExternalID: "vapi-9", TenantID: "owner"})
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}

	got := NewResolver(rec, nil, "US").Resolve(ctx, Input{TenantHint: "other", ExternalCallID: "vapi-9"})
	if got.TenantID != "owner" || got.Source != SourceCall || !got.HintConflict || got.CallID != seeded.Record.ID {
		t.Fatalf("expected stored owner with conflict flagged: %+v", got)
	}
}

func TestResolver_CallWithoutTenantFallsThrough(t *testing.T) {
	ctx := context.Background()
	rec := calls.NewReconciler(calls.NewMemoryRepo())
	out, _ := rec.Apply(ctx, calls.Event{ExternalID: "ext-2"})
	dir := NewMemoryRepo()
	dir.AddNumber("+14155550100", "t9")

	got := NewResolver(rec, dir, "US").Resolve(ctx, Input{ExternalCallID: "ext-2", Numbers: []string{"+1 415 555 0100"}})
	if got.TenantID != "t9" || got.CallID != out.Record.ID {
		t.Fatalf("expected phone tenant with call id kept: %+v", got)
	}
}

func TestSettingsResolver_Precedence(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	repo.PutSettings(SettingsRecord{
		TenantID: "t1",
		Columns:  Settings{VapiAPIKey: "col-vapi"},
		Integration: map[string]any{
			"vapi":         map[string]any{"apiKey": "legacy-vapi", "webhookSecret": "legacy-secret"},
			"openaiApiKey": "legacy-openai",
		},
	})
	defaults := Settings{WebhookSecret: "platform-secret", VapiAPIKey: "platform-vapi", OpenAIAPIKey: "platform-openai", TwilioAuthToken: "platform-twilio"}
	r := NewSettingsResolver(repo, defaults, time.Minute)

	got, err := r.Resolve(ctx, "t1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Settings{WebhookSecret: "legacy-secret", VapiAPIKey: "col-vapi", OpenAIAPIKey: "legacy-openai", TwilioAuthToken: "platform-twilio"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	if got, _ := r.Resolve(ctx, "missing"); got != defaults {
		t.Fatalf("expected defaults for unknown tenant, got %+v", got)
	}
	if got, _ := r.Resolve(ctx, ""); got != defaults {
		t.Fatalf("expected defaults for empty tenant, got %+v", got)
	}
}

func TestSettingsResolver_Caches(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	repo.PutSettings(SettingsRecord{TenantID: "t1", Columns: Settings{WebhookSecret: "s1"}})
	r := NewSettingsResolver(repo, Settings{}, time.Minute)

	_, _ = r.Resolve(ctx, "t1")
	_, _ = r.Resolve(ctx, "t1")
	if repo.SettingsReads() != 1 {
		t.Fatalf("expected one store read, got %d", repo.SettingsReads())
	}

	repo.PutSettings(SettingsRecord{TenantID: "t1", Columns: Settings{WebhookSecret: "s2"}})
	r.Invalidate("t1")
	got, _ := r.Resolve(ctx, "t1")
	if got.WebhookSecret != "s2" {
		t.Fatalf("expected refreshed secret, got %q", got.WebhookSecret)
	}
}
