package leads

import (
	"context"
	"errors"
	"testing"

	"voice-platform/internal/calls"
	"voice-platform/internal/extraction"
)

func qualified(interest int, summary string) extraction.Result {
	return extraction.Result{
		Qualification:   extraction.Qualification{InterestLevel: interest},
		Summary:         summary,
		IsQualifiedLead: true,
	}
}

func TestMaterialize_CreateThenUpdateReplacesNote(t *testing.T) {
	store := NewMemoryRepo()
	m := NewMaterializer(store, Policy{ScoreMultiplier: 10}, nil)
	ctx := context.Background()

	rec := calls.CallRecord{ID: "c1", TenantID: "t1", CustomerNumber: "(415) 555-2671"}
	first := qualified(7, "first call")
	first.Contact = extraction.Contact{FirstName: "Ada", Email: "ada@example.com"}
	first.Qualification.Budget = "10k"

	lead, created, err := m.Materialize(ctx, rec, first, extraction.Context{})
	if err != nil || !created {
		t.Fatalf("expected created lead, got %v %v", created, err)
	}
	if lead.Phone != "+14155552671" {
		t.Fatalf("expected E.164 phone, got %q", lead.Phone)
	}
	if lead.Score != 70 || lead.Quality != QualityWarm || lead.Status != StatusQualified {
		t.Fatalf("unexpected qualification fields: %+v", lead)
	}

	rec2 := calls.CallRecord{ID: "c2", TenantID: "t1", CustomerNumber: "+1 415 555 2671"}
	second := qualified(9, "second call")
	second.Contact = extraction.Contact{LastName: "Lovelace"}
	second.Qualification.Timeline = "Q1"

	updated, created, err := m.Materialize(ctx, rec2, second, extraction.Context{})
	if err != nil || created {
		t.Fatalf("expected update, got created=%v err=%v", created, err)
	}
	if updated.ID != lead.ID || store.Count() != 1 {
		t.Fatalf("expected one lead per tenant+phone, got %d", store.Count())
	}
	if updated.FirstName != "Ada" || updated.LastName != "Lovelace" || updated.Email != "ada@example.com" {
		t.Fatalf("expected merged contact fields, got %+v", updated)
	}
	if updated.CustomFields["budget"] != "10k" || updated.CustomFields["timeline"] != "Q1" {
		t.Fatalf("expected merged custom fields, got %+v", updated.CustomFields)
	}
	if updated.Score != 90 || updated.Quality != QualityHot || updated.SourceCallID != "c2" {
		t.Fatalf("expected latest score and source, got %+v", updated)
	}

	notes, _ := store.Notes(ctx, lead.ID)
	if len(notes) != 1 {
		t.Fatalf("expected exactly one note, got %d", len(notes))
	}
	if notes[0].Body[:11] != "second call" {
		t.Fatalf("expected latest note, got %q", notes[0].Body)
	}
}

func TestMaterialize_TenantsAreSeparate(t *testing.T) {
	store := NewMemoryRepo()
	m := NewMaterializer(store, Policy{}, nil)
	ctx := context.Background()

	for _, tenant := range []string{"t1", "t2"} {
		rec := calls.CallRecord{ID: "c-" + tenant, TenantID: tenant, CustomerNumber: "+14155552671"}
		if _, _, err := m.Materialize(ctx, rec, qualified(6, ""), extraction.Context{}); err != nil {
			t.Fatalf("materialize: %v", err)
		}
	}
	if store.Count() != 2 {
		t.Fatalf("expected one lead per tenant, got %d", store.Count())
	}
}

func TestMaterialize_Guards(t *testing.T) {
	m := NewMaterializer(NewMemoryRepo(), Policy{}, nil)
	ctx := context.Background()

	rec := calls.CallRecord{ID: "c1", TenantID: "t1", CustomerNumber: "+14155552671"}
	if _, _, err := m.Materialize(ctx, rec, extraction.Result{}, extraction.Context{}); !errors.Is(err, ErrNotQualified) {
		t.Fatalf("expected ErrNotQualified, got %v", err)
	}
	if _, _, err := m.Materialize(ctx, calls.CallRecord{ID: "c1", CustomerNumber: "+14155552671"}, qualified(8, ""), extraction.Context{}); !errors.Is(err, ErrNoTenant) {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}
	if _, _, err := m.Materialize(ctx, calls.CallRecord{ID: "c1", TenantID: "t1"}, qualified(8, ""), extraction.Context{}); !errors.Is(err, ErrNoPhone) {
		t.Fatalf("expected ErrNoPhone, got %v", err)
	}
}

func TestScoreAndTier(t *testing.T) {
	m := NewMaterializer(NewMemoryRepo(), Policy{ScoreMultiplier: 10}, nil)
	cases := []struct {
		interest int
		score    int
		tier     Quality
	}{
		{interest: 10, score: 100, tier: QualityHot},
		{interest: 8, score: 80, tier: QualityHot},
		{interest: 6, score: 60, tier: QualityWarm},
		{interest: 3, score: 30, tier: QualityCold},
		{interest: 12, score: 100, tier: QualityHot},
	}
	for _, tc := range cases {
		s := m.Score(tc.interest)
		if s != tc.score || Tier(s) != tc.tier {
			t.Fatalf("interest %d: expected %d/%s, got %d/%s", tc.interest, tc.score, tc.tier, s, Tier(s))
		}
	}
}
