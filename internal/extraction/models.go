// Package extraction turns call transcripts into normalized sales data and a
// qualification decision.
package extraction

import (
	"context"
	"time"
)

// Source records which path produced a Result.
type Source string

const (
	SourceAI        Source = "ai"
	SourceHeuristic Source = "heuristic"
)

// Capability is the AI extraction backend. Its output shape is not trusted.
type Capability interface {
	Extract(ctx context.Context, transcript string, c Context) (map[string]any, error)
}

// Context is auxiliary call data passed to the capability.
type Context struct {
	CallID          string
	TenantID        string
	CustomerNumber  string
	CampaignID      string
	CampaignName    string
	CallingCompany  string
	DurationSeconds float64
}

type Contact struct {
	FullName   string `json:"full_name,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Company    string `json:"company,omitempty"`
	Title      string `json:"title,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Qualification struct {
	// InterestLevel is 1..10, or 0 when unknown.
	InterestLevel     int    `json:"interest_level"`
	Budget            string `json:"budget,omitempty"`
	Timeline          string `json:"timeline,omitempty"`
	DecisionAuthority string `json:"decision_authority,omitempty"`
}

type Appointment struct {
	Requested bool   `json:"requested"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Signals are the inputs to the qualification policy besides interest level.
type Signals struct {
	PricingRequested  bool `json:"pricing_requested"`
	ContactInfoGiven  bool `json:"contact_info_given"`
	CallbackRequested bool `json:"callback_requested"`
	NegativeConsent   bool `json:"negative_consent"`
}

// Result is the normalized extraction. Every field is optional.
type Result struct {
	Contact       Contact       `json:"contact"`
	Qualification Qualification `json:"qualification"`
	Appointment   Appointment   `json:"appointment"`
	Signals       Signals       `json:"signals"`

	Questions     []string `json:"questions"`
	Objections    []string `json:"objections"`
	BuyingSignals []string `json:"buying_signals"`
	NextSteps     []string `json:"next_steps"`
	PainPoints    []string `json:"pain_points"`

	Sentiment string `json:"sentiment,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Summary   string `json:"summary,omitempty"`

	// ModelQualified is the capability's own flag, kept for inspection only.
	ModelQualified  *bool     `json:"model_qualified,omitempty"`
	IsQualifiedLead bool      `json:"is_qualified_lead"`
	Confidence      float64   `json:"confidence"`
	Source          Source    `json:"source"`
	ExtractedAt     time.Time `json:"extracted_at"`
}

// Metadata renders the result for storage on the call record.
func (r Result) Metadata() map[string]any {
	return map[string]any{
		"extraction": map[string]any{
			"contact":           r.Contact,
			"qualification":     r.Qualification,
			"appointment":       r.Appointment,
			"signals":           r.Signals,
			"questions":         r.Questions,
			"objections":        r.Objections,
			"buying_signals":    r.BuyingSignals,
			"next_steps":        r.NextSteps,
			"pain_points":       r.PainPoints,
			"is_qualified_lead": r.IsQualifiedLead,
			"confidence":        r.Confidence,
			"source":            string(r.Source),
			"extracted_at":      r.ExtractedAt.Format(time.RFC3339),
		},
	}
}

// CustomFields are the open lead fields this result contributes. Empty values
// are omitted so they never overwrite what a lead already holds.
func (r Result) CustomFields(c Context) map[string]any {
	out := map[string]any{}
	put := func(k string, v string) {
		if v != "" {
			out[k] = v
		}
	}
	putList := func(k string, v []string) {
		if len(v) > 0 {
			out[k] = v
		}
	}
	put("budget", r.Qualification.Budget)
	put("timeline", r.Qualification.Timeline)
	put("decision_authority", r.Qualification.DecisionAuthority)
	if r.Qualification.InterestLevel > 0 {
		out["interest_level"] = r.Qualification.InterestLevel
	}
	put("sentiment", r.Sentiment)
	putList("pain_points", r.PainPoints)
	putList("objections", r.Objections)
	putList("questions", r.Questions)
	putList("buying_signals", r.BuyingSignals)
	putList("next_steps", r.NextSteps)
	if r.Appointment.Requested {
		appt := map[string]any{"requested": true}
		if r.Appointment.Date != "" {
			appt["date"] = r.Appointment.Date
		}
		if r.Appointment.Time != "" {
			appt["time"] = r.Appointment.Time
		}
		if r.Appointment.Type != "" {
			appt["type"] = r.Appointment.Type
		}
		out["appointment"] = appt
	}
	put("calling_company", c.CallingCompany)
	put("campaign_name", c.CampaignName)
	return out
}
