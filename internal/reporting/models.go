package reporting

import "time"

// CampaignMetrics is the rolling aggregate for one campaign. It is always
// recomputed from the full set of the campaign's calls.
type CampaignMetrics struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`

	Attempted int `json:"attempted"`
	Connected int `json:"connected"`
	Completed int `json:"completed"`
	Qualified int `json:"qualified"`

	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	TotalCost            float64 `json:"total_cost"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectionRate is connected / attempted, or 0.
func (m CampaignMetrics) ConnectionRate() float64 {
	if m.Attempted == 0 {
		return 0
	}
	return float64(m.Connected) / float64(m.Attempted)
}
