package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-platform/internal/calls"
)

var (
	ErrInvalidRequest = errors.New("reporting: invalid request")
	ErrNotFound       = errors.New("reporting: not found")
)

// CallSource lists a campaign's calls. calls.Store satisfies it.
type CallSource interface {
	ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]calls.CallRecord, error)
}

// Repository stores one aggregate row per (tenant, campaign).
type Repository interface {
	UpsertCampaignMetrics(ctx context.Context, m CampaignMetrics) error
	GetCampaignMetrics(ctx context.Context, tenantID, campaignID string) (CampaignMetrics, error)
}

type Service struct {
	calls CallSource
	repo  Repository
	clock func() time.Time
}

func NewService(calls CallSource, repo Repository) *Service {
	return &Service{calls: calls, repo: repo, clock: time.Now}
}

// RecomputeCampaign rescans every call of the campaign and overwrites the
// aggregate. Concurrent recomputes are safe; the last write wins.
func (s *Service) RecomputeCampaign(ctx context.Context, tenantID, campaignID string) (CampaignMetrics, error) {
	if tenantID == "" || campaignID == "" {
		return CampaignMetrics{}, ErrInvalidRequest
	}
	rows, err := s.calls.ListByCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return CampaignMetrics{}, fmt.Errorf("list campaign calls: %w", err)
	}

	m := Aggregate(rows)
	m.TenantID, m.CampaignID = tenantID, campaignID
	m.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpsertCampaignMetrics(ctx, m); err != nil {
		return CampaignMetrics{}, fmt.Errorf("store campaign metrics: %w", err)
	}
	return m, nil
}

func (s *Service) Campaign(ctx context.Context, tenantID, campaignID string) (CampaignMetrics, error) {
	if tenantID == "" || campaignID == "" {
		return CampaignMetrics{}, ErrInvalidRequest
	}
	return s.repo.GetCampaignMetrics(ctx, tenantID, campaignID)
}

// Aggregate folds call records into metrics.
func Aggregate(rows []calls.CallRecord) CampaignMetrics {
	var m CampaignMetrics
	for _, c := range rows {
		m.Attempted++
		if connected(c) {
			m.Connected++
		}
		if c.Status == calls.StatusCompleted {
			m.Completed++
		}
		if q, _ := c.Metadata["qualified"].(bool); q {
			m.Qualified++
		}
		m.TotalDurationSeconds += c.DurationSeconds
		m.TotalCost += c.Cost
	}
	return m
}

func connected(c calls.CallRecord) bool {
	switch c.Status {
	case calls.StatusInProgress, calls.StatusTransferring, calls.StatusOnHold, calls.StatusCompleted:
		return true
	case calls.StatusQueued, calls.StatusRinging, calls.StatusNoAnswer, calls.StatusBusy:
		return false
	}
	return c.StartedAt != nil || c.DurationSeconds > 0
}
