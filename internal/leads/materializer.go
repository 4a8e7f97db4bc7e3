// Package leads materializes qualified calls into leads, one per tenant and
// phone number.
package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"voice-platform/internal/calls"
	"voice-platform/internal/extraction"
	"voice-platform/internal/metrics"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/phone"
)

var (
	ErrNotQualified = errors.New("leads: call is not qualified")
	ErrNoTenant     = errors.New("leads: call has no tenant")
	ErrNoPhone      = errors.New("leads: no usable phone number")
)

type Policy struct {
	// ScoreMultiplier scales interest (1..10) to a 0..100 score.
	ScoreMultiplier int
	Region          string
}

type Materializer struct {
	store   Store
	policy  Policy
	metrics *metrics.Metrics
	clock   func() time.Time
}

func NewMaterializer(store Store, policy Policy, m *metrics.Metrics) *Materializer {
	if policy.ScoreMultiplier <= 0 {
		policy.ScoreMultiplier = 10
	}
	if policy.Region == "" {
		policy.Region = phone.DefaultRegion
	}
	return &Materializer{store: store, policy: policy, metrics: m, clock: time.Now}
}

// Key returns the natural key phone for a call, normalized the same way for
// writes and lookups.
func (m *Materializer) Key(rec calls.CallRecord, r extraction.Result) string {
	if n := phone.Normalize(rec.CustomerNumber, m.policy.Region); n != "" {
		return n
	}
	return phone.Normalize(r.Contact.Phone, m.policy.Region)
}

// Score converts an interest level to 0..100.
func (m *Materializer) Score(interest int) int {
	s := interest * m.policy.ScoreMultiplier
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}

// Materialize upserts the lead for a qualified call and replaces its summary note.
func (m *Materializer) Materialize(ctx context.Context, rec calls.CallRecord, r extraction.Result, c extraction.Context) (Lead, bool, error) {
	if !r.IsQualifiedLead {
		return Lead{}, false, ErrNotQualified
	}
	if rec.TenantID == "" {
		return Lead{}, false, ErrNoTenant
	}
	num := m.Key(rec, r)
	if num == "" {
		return Lead{}, false, ErrNoPhone
	}

	now := m.clock().UTC()
	score := m.Score(r.Qualification.InterestLevel)
	lead := Lead{
		ID:           uuid.NewString(),
		TenantID:     rec.TenantID,
		Phone:        num,
		FirstName:    r.Contact.FirstName,
		LastName:     r.Contact.LastName,
		Email:        r.Contact.Email,
		Street:       r.Contact.Street,
		City:         r.Contact.City,
		State:        r.Contact.State,
		PostalCode:   r.Contact.PostalCode,
		Country:      r.Contact.Country,
		Company:      r.Contact.Company,
		Title:        r.Contact.Title,
		Score:        score,
		Quality:      Tier(score),
		Status:       StatusQualified,
		SourceCallID: rec.ID,
		CampaignID:   rec.CampaignID,
		CustomFields: r.CustomFields(c),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	note := Note{
		ID:        uuid.NewString(),
		TenantID:  rec.TenantID,
		Kind:      NoteKindSummary,
		Body:      noteBody(rec, r),
		CreatedAt: now,
	}

	out, created, err := m.store.Upsert(ctx, lead, note)
	if err != nil {
		m.metrics.RecordLeadWrite("failed")
		return Lead{}, false, fmt.Errorf("upsert lead: %w", err)
	}
	result := "updated"
	if created {
		result = "created"
	}
	m.metrics.RecordLeadWrite(result)
	logger.From(ctx).Info("lead materialized", "lead_id", out.ID, "call_id", rec.ID, "tenant_id", rec.TenantID, "result", result, "score", out.Score)
	return out, created, nil
}

func noteBody(rec calls.CallRecord, r extraction.Result) string {
	var b strings.Builder
	summary := r.Summary
	if summary == "" {
		summary = rec.Summary
	}
	if summary != "" {
		b.WriteString(summary)
	} else {
		fmt.Fprintf(&b, "Qualified on call %s.", rec.ID)
	}
	fmt.Fprintf(&b, "\n\nInterest: %d/10", r.Qualification.InterestLevel)
	if r.Sentiment != "" {
		fmt.Fprintf(&b, " | Sentiment: %s", r.Sentiment)
	}
	if r.Appointment.Requested {
		b.WriteString(" | Appointment requested")
		if r.Appointment.Date != "" {
			fmt.Fprintf(&b, " for %s %s", r.Appointment.Date, r.Appointment.Time)
		}
	}
	if len(r.NextSteps) > 0 {
		fmt.Fprintf(&b, "\nNext steps: %s", strings.Join(r.NextSteps, "; "))
	}
	return strings.TrimSpace(b.String())
}
