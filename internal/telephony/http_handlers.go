package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voice-platform/internal/events"
	"voice-platform/internal/jobs"
	"voice-platform/internal/metrics"
	"voice-platform/internal/tenancy"
	"voice-platform/pkg/logger"
)

// KindWebhookIngest is the job kind carrying a received webhook.
const KindWebhookIngest = "webhook.ingest"

const maxWebhookBody = 2 << 20

// IngestRequest is the payload of a webhook.ingest job and the stored event
// payload. Body holds the Vapi JSON body; Form and Query are encoded values for
// Twilio.
type IngestRequest struct {
	Provider   events.Provider `json:"provider"`
	Body       json.RawMessage `json:"body,omitempty"`
	Form       string          `json:"form,omitempty"`
	Query      string          `json:"query,omitempty"`
	TenantHint string          `json:"tenant_hint,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Parse re-reads the stored request into a ProviderEvent.
func (r IngestRequest) Parse() (ProviderEvent, error) {
	switch r.Provider {
	case events.ProviderTwilio:
		form, err := url.ParseQuery(r.Form)
		if err != nil {
			return ProviderEvent{}, ErrInvalidPayload
		}
		query, err := url.ParseQuery(r.Query)
		if err != nil {
			return ProviderEvent{}, ErrInvalidPayload
		}
		return ParseTwilioStatus(form, query)
	default:
		return ParseVapiWebhook(r.Body)
	}
}

type IdentityResolver interface {
	Resolve(ctx context.Context, in tenancy.Input) tenancy.Resolution
}

type SettingsSource interface {
	Resolve(ctx context.Context, tenantID string) (tenancy.Settings, error)
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, s jobs.Spec) (bool, error)
}

// WebhookHandler verifies provider webhooks and hands them to the ingest
// queue. It never touches the call store beyond the identity lookup.
type WebhookHandler struct {
	Identity IdentityResolver
	Settings SettingsSource
	Jobs     JobEnqueuer
	Metrics  *metrics.Metrics

	// Production rejects unsigned requests and tenants without a secret.
	Production bool
	// PublicBaseURL is the externally visible scheme://host used for Twilio
	// signature checks behind a proxy.
	PublicBaseURL string
	// ResolveTimeout bounds identity and settings lookups before the ack.
	ResolveTimeout time.Duration

	Now func() time.Time
}

func (h WebhookHandler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

// HandleVapi serves POST /webhooks/vapi and /webhooks/vapi/:tenant_id.
func (h WebhookHandler) HandleVapi(c *gin.Context) {
	log := logger.FromGin(c)

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(raw) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "raw body unavailable"})
		return
	}

	ev, err := ParseVapiWebhook(raw)
	if err != nil {
		log.Warn("vapi webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	h.Metrics.RecordWebhook(string(events.ProviderVapi), ev.Type)

	urlHint := c.Param("tenant_id")
	settings, tenantID, ok := h.settingsFor(c, ev.IdentityInput(urlHint))
	if !ok {
		return
	}

	err = verifyVapi(raw, c.GetHeader(HeaderVapiSignature), c.GetHeader(HeaderVapiSecret), settings.WebhookSecret)
	if !h.allow(c, err, settings.WebhookSecret, tenantID) {
		return
	}

	h.enqueue(c, IngestRequest{
		Provider:   events.ProviderVapi,
		Body:       raw,
		TenantHint: urlHint,
		ReceivedAt: h.now(),
	}, ev)
}

// HandleTwilioStatus serves POST /webhooks/twilio/status.
func (h WebhookHandler) HandleTwilioStatus(c *gin.Context) {
	log := logger.FromGin(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	form := c.Request.PostForm
	query := c.Request.URL.Query()

	ev, err := ParseTwilioStatus(form, query)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	h.Metrics.RecordWebhook(string(events.ProviderTwilio), ev.Type)

	settings, tenantID, ok := h.settingsFor(c, ev.IdentityInput(""))
	if !ok {
		return
	}

	token := settings.TwilioAuthToken
	if token != "" {
		err = ValidateTwilioSignature(token, h.publicURL(c), form, c.GetHeader(HeaderTwilioSignature))
	} else {
		err = ErrMissingSignature
	}
	if !h.allow(c, err, token, tenantID) {
		return
	}

	h.enqueue(c, IngestRequest{
		Provider:   events.ProviderTwilio,
		Form:       form.Encode(),
		Query:      c.Request.URL.RawQuery,
		ReceivedAt: h.now(),
	}, ev)
}

// settingsFor resolves identity and tenant settings under the ack budget. A
// lookup that times out degrades to platform defaults.
func (h WebhookHandler) settingsFor(c *gin.Context, in tenancy.Input) (tenancy.Settings, string, bool) {
	timeout := h.ResolveTimeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	var tenantID string
	if h.Identity != nil {
		tenantID = h.Identity.Resolve(ctx, in).TenantID
	} else {
		tenantID = in.TenantHint
	}
	if h.Settings == nil {
		return tenancy.Settings{}, tenantID, true
	}
	s, err := h.Settings.Resolve(ctx, tenantID)
	if err != nil {
		logger.FromGin(c).Error("webhook settings lookup failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "settings unavailable"})
		return tenancy.Settings{}, tenantID, false
	}
	return s, tenantID, true
}

// allow applies the verification policy: unsigned requests and unknown secrets
// pass with a warning outside production.
func (h WebhookHandler) allow(c *gin.Context, verr error, secret, tenantID string) bool {
	log := logger.FromGin(c)

	if secret == "" {
		if h.Production {
			log.Warn("webhook rejected: no secret configured", "tenant_id", tenantID)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "webhook secret not configured"})
			return false
		}
		log.Warn("webhook accepted without verification: no secret configured", "tenant_id", tenantID)
		return true
	}

	switch {
	case verr == nil:
		return true
	case errors.Is(verr, ErrMissingSignature) && !h.Production:
		log.Warn("webhook accepted without signature", "tenant_id", tenantID)
		return true
	default:
		log.Warn("webhook signature rejected", "tenant_id", tenantID, "err", verr)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return false
	}
}

func (h WebhookHandler) enqueue(c *gin.Context, req IngestRequest, ev ProviderEvent) {
	log := logger.FromGin(c)

	if h.Jobs == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "queue not configured"})
		return
	}
	if _, err := h.Jobs.Enqueue(c.Request.Context(), jobs.Spec{
		Queue:   jobs.QueueWebhooks,
		Kind:    KindWebhookIngest,
		Payload: req,
	}); err != nil {
		log.Error("webhook enqueue failed", "type", ev.Type, "call_id", ev.CallID(), "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
		return
	}
	log.Debug("webhook queued", "provider", string(req.Provider), "type", ev.Type, "call_id", ev.CallID())
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h WebhookHandler) publicURL(c *gin.Context) string {
	base := strings.TrimRight(h.PublicBaseURL, "/")
	if base == "" {
		scheme := "https"
		if c.Request.TLS == nil && c.GetHeader("X-Forwarded-Proto") == "" {
			scheme = "http"
		} else if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
			scheme = p
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + c.Request.URL.RequestURI()
}

func verifyVapi(body []byte, signature, sharedSecret, secret string) error {
	if strings.TrimSpace(signature) != "" {
		return VerifySignature(body, signature, secret)
	}
	if sharedSecret != "" {
		return VerifySharedSecret(sharedSecret, secret)
	}
	return ErrMissingSignature
}
