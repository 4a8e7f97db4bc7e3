package leads

import "time"

type Quality string

const (
	QualityHot  Quality = "hot"
	QualityWarm Quality = "warm"
	QualityCold Quality = "cold"
)

const StatusQualified = "qualified"

const NoteKindSummary = "ai_summary"

// Lead is a qualified prospect, unique per (TenantID, Phone). Phone is E.164.
type Lead struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Phone    string `json:"phone"`

	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Company    string `json:"company,omitempty"`
	Title      string `json:"title,omitempty"`

	Score   int     `json:"score"`
	Quality Quality `json:"quality,omitempty"`
	Status  string  `json:"status"`

	SourceCallID string         `json:"source_call_id,omitempty"`
	CampaignID   string         `json:"campaign_id,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Note is the current AI summary of a lead. A lead holds exactly one.
type Note struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	TenantID  string    `json:"tenant_id"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Tier maps a 0..100 score to a quality tier.
func Tier(score int) Quality {
	switch {
	case score >= 80:
		return QualityHot
	case score >= 60:
		return QualityWarm
	default:
		return QualityCold
	}
}

// MergeLead applies next onto cur: present values win, absent ones keep the
// prior value, custom fields merge key-wise. Status is only set on create.
func MergeLead(cur, next Lead) Lead {
	out := cur
	overwrite(&out.FirstName, next.FirstName)
	overwrite(&out.LastName, next.LastName)
	overwrite(&out.Email, next.Email)
	overwrite(&out.Street, next.Street)
	overwrite(&out.City, next.City)
	overwrite(&out.State, next.State)
	overwrite(&out.PostalCode, next.PostalCode)
	overwrite(&out.Country, next.Country)
	overwrite(&out.Company, next.Company)
	overwrite(&out.Title, next.Title)
	overwrite(&out.SourceCallID, next.SourceCallID)
	overwrite(&out.CampaignID, next.CampaignID)
	if next.Score > 0 {
		out.Score = next.Score
		out.Quality = Tier(next.Score)
	}
	if out.Status == "" {
		out.Status = next.Status
	}

	merged := make(map[string]any, len(cur.CustomFields)+len(next.CustomFields))
	for k, v := range cur.CustomFields {
		merged[k] = v
	}
	for k, v := range next.CustomFields {
		merged[k] = v
	}
	out.CustomFields = merged
	out.UpdatedAt = next.UpdatedAt
	return out
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
