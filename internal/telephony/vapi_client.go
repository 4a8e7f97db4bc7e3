package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var ErrNoAPIKey = errors.New("telephony: no voice provider api key for tenant")

// APIError is a non-2xx response from the voice provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vapi api error: status %d: %s", e.Status, e.Body)
}

// NotFound reports whether the provider answered 404.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// KeyFunc resolves the provider API key for a tenant.
type KeyFunc func(ctx context.Context, tenantID string) (string, error)

type VapiClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// VapiClient calls the Vapi REST API. All tenants share one rate limiter so
// polling jobs cannot exceed the account limit.
type VapiClient struct {
	http    *resty.Client
	key     KeyFunc
	limiter *rate.Limiter
}

func NewVapiClient(cfg VapiClientConfig, key KeyFunc) *VapiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.vapi.ai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &VapiClient{
		http:    client,
		key:     key,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

type CreateCallRequest struct {
	AssistantID   string       `json:"assistantId,omitempty"`
	PhoneNumberID string       `json:"phoneNumberId,omitempty"`
	Customer      VapiCustomer `json:"customer"`
	// Metadata is echoed back on every webhook for this call.
	Metadata map[string]any `json:"-"`
}

type createCallBody struct {
	AssistantID        string       `json:"assistantId,omitempty"`
	PhoneNumberID      string       `json:"phoneNumberId,omitempty"`
	Customer           VapiCustomer `json:"customer"`
	AssistantOverrides struct {
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"assistantOverrides"`
}

type Assistant struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	CreatedAt FlexTime `json:"createdAt"`
}

func (c *VapiClient) CreateCall(ctx context.Context, tenantID string, req CreateCallRequest) (VapiCall, error) {
	body := createCallBody{
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
		Customer:      req.Customer,
	}
	body.AssistantOverrides.Metadata = req.Metadata

	var out VapiCall
	if err := c.do(ctx, tenantID, http.MethodPost, "/call", body, &out); err != nil {
		return VapiCall{}, err
	}
	return out, nil
}

// GetCall fetches current call detail, including the transcript once ready.
func (c *VapiClient) GetCall(ctx context.Context, tenantID, callID string) (CallDetail, error) {
	var out VapiCall
	if err := c.do(ctx, tenantID, http.MethodGet, "/call/"+callID, nil, &out); err != nil {
		return VapiCall{}, err
	}
	return out, nil
}

func (c *VapiClient) ListAssistants(ctx context.Context, tenantID string) ([]Assistant, error) {
	var out []Assistant
	if err := c.do(ctx, tenantID, http.MethodGet, "/assistant", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VapiClient) ListPhoneNumbers(ctx context.Context, tenantID string) ([]VapiPhoneNumber, error) {
	var out []VapiPhoneNumber
	if err := c.do(ctx, tenantID, http.MethodGet, "/phone-number", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VapiClient) do(ctx context.Context, tenantID, method, path string, body, result any) error {
	key, err := c.key(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve api key: %w", err)
	}
	if key == "" {
		return ErrNoAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	r := c.http.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetResult(result)
	if body != nil {
		r.SetBody(body)
	}
	resp, err := r.Execute(method, path)
	if err != nil {
		return fmt.Errorf("vapi %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// CallDetail is the provider's current view of a call.
type CallDetail = VapiCall
