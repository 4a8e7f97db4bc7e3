package reporting

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]CampaignMetrics // key: tenant_id|campaign_id
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]CampaignMetrics{}} }

func (r *MemoryRepo) UpsertCampaignMetrics(ctx context.Context, m CampaignMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.TenantID+"|"+m.CampaignID] = m
	return nil
}

func (r *MemoryRepo) GetCampaignMetrics(ctx context.Context, tenantID, campaignID string) (CampaignMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[tenantID+"|"+campaignID]
	if !ok {
		return CampaignMetrics{}, ErrNotFound
	}
	return m, nil
}
