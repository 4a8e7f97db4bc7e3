// Package outbound places provider calls on behalf of a tenant.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"voice-platform/internal/calls"
	"voice-platform/internal/telephony"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/phone"
)

var (
	ErrInvalidRequest = errors.New("outbound: invalid request")
	ErrInvalidNumber  = errors.New("outbound: customer number is not a phone number")
	ErrProvider       = errors.New("outbound: provider rejected the call")
)

var validate = validator.New()

type Request struct {
	CustomerNumber string `json:"customer_number" validate:"required,max=32"`
	CustomerName   string `json:"customer_name,omitempty" validate:"max=200"`
	AssistantID    string `json:"assistant_id" validate:"required,max=128"`
	PhoneNumberID  string `json:"phone_number_id" validate:"required,max=128"`
	LeadID         string `json:"lead_id,omitempty" validate:"max=128"`
	CampaignID     string `json:"campaign_id,omitempty" validate:"max=128"`
}

type Provider interface {
	CreateCall(ctx context.Context, tenantID string, req telephony.CreateCallRequest) (telephony.VapiCall, error)
	ListAssistants(ctx context.Context, tenantID string) ([]telephony.Assistant, error)
	ListPhoneNumbers(ctx context.Context, tenantID string) ([]telephony.VapiPhoneNumber, error)
}

type Reconciler interface {
	Apply(ctx context.Context, ev calls.Event) (calls.Outcome, error)
}

type Service struct {
	provider   Provider
	reconciler Reconciler
	region     string
	clock      func() time.Time
}

func NewService(p Provider, r Reconciler, region string) *Service {
	return &Service{provider: p, reconciler: r, region: region, clock: time.Now}
}

// Dispatch pre-creates the call record so webhooks arriving before the
// provider response still find it through the internal id.
func (s *Service) Dispatch(ctx context.Context, tenantID string, req Request) (calls.CallRecord, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return calls.CallRecord{}, fmt.Errorf("%w: tenant required", ErrInvalidRequest)
	}
	if err := validate.Struct(req); err != nil {
		return calls.CallRecord{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	number := phone.Normalize(req.CustomerNumber, s.region)
	if number == "" {
		return calls.CallRecord{}, ErrInvalidNumber
	}

	callID := uuid.NewString()
	log := logger.From(ctx).With("call_id", callID, "tenant_id", tenantID)
	now := s.clock().UTC()

	pre, err := s.reconciler.Apply(ctx, calls.Event{
		InternalID:     callID,
		TenantID:       tenantID,
		Direction:      calls.DirectionOutbound,
		Status:         calls.StatusQueued,
		At:             now,
		CustomerNumber: number,
		AssistantID:    req.AssistantID,
		LeadID:         req.LeadID,
		CampaignID:     req.CampaignID,
	})
	if err != nil {
		return calls.CallRecord{}, fmt.Errorf("precreate call: %w", err)
	}

	meta := map[string]any{"tenantId": tenantID, "internalCallId": callID}
	if req.CampaignID != "" {
		meta["campaignId"] = req.CampaignID
	}
	if req.LeadID != "" {
		meta["leadId"] = req.LeadID
	}
	created, err := s.provider.CreateCall(ctx, tenantID, telephony.CreateCallRequest{
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
		Customer:      telephony.VapiCustomer{Number: number, Name: req.CustomerName},
		Metadata:      meta,
	})
	if err != nil {
		log.Error("outbound create call failed", "err", err)
		if _, aerr := s.reconciler.Apply(ctx, calls.Event{
			InternalID:  callID,
			Status:      calls.StatusFailed,
			At:          s.clock().UTC(),
			EndedReason: "dispatch-failed",
		}); aerr != nil {
			log.Error("outbound mark failed", "err", aerr)
		}
		return pre.Record, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	ev := created.LifecycleEvent()
	ev.InternalID = callID
	ev.TenantID = tenantID
	ev.At = s.clock().UTC()
	out, err := s.reconciler.Apply(ctx, ev)
	if err != nil {
		// The provider call exists; its webhooks carry internalCallId and will attach it.
		log.Error("outbound attach external id failed", "external_id", created.ID, "err", err)
		return pre.Record, nil
	}
	log.Info("outbound call dispatched", "external_id", created.ID)
	return out.Record, nil
}

func (s *Service) Assistants(ctx context.Context, tenantID string) ([]telephony.Assistant, error) {
	return s.provider.ListAssistants(ctx, tenantID)
}

func (s *Service) PhoneNumbers(ctx context.Context, tenantID string) ([]telephony.VapiPhoneNumber, error) {
	return s.provider.ListPhoneNumbers(ctx, tenantID)
}
