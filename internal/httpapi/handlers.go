// Package httpapi serves the tenant ops API. Handlers stay thin: bind and
// validate input, call a service, return JSON.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/audit"
	"voice-platform/internal/auth"
	"voice-platform/internal/calls"
	"voice-platform/internal/events"
	"voice-platform/internal/jobs"
	"voice-platform/internal/leads"
	"voice-platform/internal/outbound"
	"voice-platform/internal/rbac"
	"voice-platform/internal/reporting"
	"voice-platform/internal/telephony"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/phone"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID string, req outbound.Request) (calls.CallRecord, error)
	Assistants(ctx context.Context, tenantID string) ([]telephony.Assistant, error)
	PhoneNumbers(ctx context.Context, tenantID string) ([]telephony.VapiPhoneNumber, error)
}

type CallReader interface {
	Get(ctx context.Context, id string) (calls.CallRecord, error)
}

type EventReader interface {
	Get(ctx context.Context, id string) (events.WebhookEvent, error)
	ListByStatus(ctx context.Context, tenantID string, status events.Status, limit int) ([]events.WebhookEvent, error)
}

type MetricsReader interface {
	Campaign(ctx context.Context, tenantID, campaignID string) (reporting.CampaignMetrics, error)
}

type LeadReader interface {
	GetByPhone(ctx context.Context, tenantID, phone string) (leads.Lead, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, s jobs.Spec) (bool, error)
}

// ReplayJob builds the job that re-runs a stored webhook event.
type ReplayJob func(eventID string) jobs.Spec

type Handlers struct {
	Outbound  Dispatcher
	Calls     CallReader
	Events    EventReader
	Campaigns MetricsReader
	Leads     LeadReader
	Jobs      Enqueuer
	Replay    ReplayJob
	Audit     *audit.Service
	Region    string
}

func tenantOf(c *gin.Context) (string, bool) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tenantID, true
}

func actorOf(ctx context.Context) audit.Actor {
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	return audit.Actor{UserID: uid, Role: role, IP: auth.ClientIP(ctx)}
}

// visible reports whether a resource owned by owner may be shown to the caller.
func visible(ctx context.Context, tenantID, owner string) bool {
	if owner == tenantID {
		return true
	}
	role, _ := auth.Role(ctx)
	return rbac.IsSuperAdmin(role)
}

// --- Calls ---

func (h Handlers) DispatchOutbound(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	var req outbound.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	rec, err := h.Outbound.Dispatch(c.Request.Context(), tenantID, req)
	switch {
	case errors.Is(err, outbound.ErrInvalidRequest), errors.Is(err, outbound.ErrInvalidNumber):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, outbound.ErrProvider):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider rejected the call", "call_id": rec.ID})
		return
	case err != nil:
		logger.FromGin(c).Error("outbound dispatch failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
		return
	}

	if h.Audit != nil {
		if err := h.Audit.LogOutboundDispatch(c.Request.Context(), tenantID, actorOf(c.Request.Context()), rec.ID); err != nil {
			logger.FromGin(c).Warn("audit write failed", "call_id", rec.ID, "err", err)
		}
	}
	c.JSON(http.StatusAccepted, rec)
}

func (h Handlers) GetCall(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	rec, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, calls.ErrNotFound) || (err == nil && !visible(c.Request.Context(), tenantID, rec.TenantID)) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Webhook events ---

func (h Handlers) ListWebhookEvents(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	status := events.Status(c.DefaultQuery("status", string(events.StatusFailed)))
	switch status {
	case events.StatusReceived, events.StatusProcessed, events.StatusFailed:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be received, processed or failed"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.Events.ListByStatus(c.Request.Context(), tenantID, status, limit)
	if err != nil {
		logger.FromGin(c).Error("list webhook events failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}

func (h Handlers) ReplayWebhookEvent(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	ev, err := h.Events.Get(ctx, c.Param("event_id"))
	if errors.Is(err, events.ErrNotFound) || (err == nil && !visible(ctx, tenantID, ev.TenantID)) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("event lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	queued, err := h.Jobs.Enqueue(ctx, h.Replay(ev.ID))
	if err != nil {
		logger.FromGin(c).Error("replay enqueue failed", "event_id", ev.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogReplay(ctx, tenantID, actorOf(ctx), ev.ID); err != nil {
			logger.FromGin(c).Warn("audit write failed", "event_id", ev.ID, "err", err)
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"event_id": ev.ID, "queued": queued})
}

// --- Voice configuration ---

func (h Handlers) ListAssistants(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	list, err := h.Outbound.Assistants(c.Request.Context(), tenantID)
	if err != nil {
		providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assistants": list})
}

func (h Handlers) ListPhoneNumbers(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	list, err := h.Outbound.PhoneNumbers(c.Request.Context(), tenantID)
	if err != nil {
		providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone_numbers": list})
}

func providerError(c *gin.Context, err error) {
	if errors.Is(err, telephony.ErrNoAPIKey) {
		c.AbortWithStatusJSON(http.StatusFailedDependency, gin.H{"error": "voice provider not configured"})
		return
	}
	logger.FromGin(c).Error("voice provider request failed", "err", err)
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "voice provider unavailable"})
}

// --- Reporting ---

func (h Handlers) GetCampaignMetrics(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	m, err := h.Campaigns.Campaign(c.Request.Context(), tenantID, c.Param("campaign_id"))
	switch {
	case errors.Is(err, reporting.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no metrics for campaign"})
	case errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id required"})
	case err != nil:
		logger.FromGin(c).Error("campaign metrics failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"metrics": m, "connection_rate": m.ConnectionRate()})
	}
}

// --- Leads ---

func (h Handlers) GetLeadByPhone(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	num := phone.Normalize(c.Query("phone"), h.Region)
	if num == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}
	l, err := h.Leads.GetByPhone(c.Request.Context(), tenantID, num)
	if errors.Is(err, leads.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("lead lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, l)
}
