package telephony

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"voice-platform/internal/calls"
)

// VapiCall is the call object Vapi sends in webhooks and returns from GET /call/:id.
type VapiCall struct {
	ID            string           `json:"id"`
	OrgID         string           `json:"orgId,omitempty"`
	Type          string           `json:"type,omitempty"`
	Status        string           `json:"status,omitempty"`
	EndedReason   string           `json:"endedReason,omitempty"`
	AssistantID   string           `json:"assistantId,omitempty"`
	PhoneNumberID string           `json:"phoneNumberId,omitempty"`
	Customer      *VapiCustomer    `json:"customer,omitempty"`
	PhoneNumber   *VapiPhoneNumber `json:"phoneNumber,omitempty"`

	CreatedAt FlexTime  `json:"createdAt,omitempty"`
	StartedAt FlexTime  `json:"startedAt,omitempty"`
	EndedAt   FlexTime  `json:"endedAt,omitempty"`
	Cost      FlexFloat `json:"cost,omitempty"`

	Transcript   string        `json:"transcript,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	RecordingURL string        `json:"recordingUrl,omitempty"`
	Artifact     *VapiArtifact `json:"artifact,omitempty"`
	Analysis     *VapiAnalysis `json:"analysis,omitempty"`

	Metadata           map[string]any `json:"metadata,omitempty"`
	AssistantOverrides *struct {
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"assistantOverrides,omitempty"`
}

type VapiCustomer struct {
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
}

type VapiPhoneNumber struct {
	ID     string `json:"id,omitempty"`
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
}

type VapiArtifact struct {
	Transcript   string `json:"transcript,omitempty"`
	RecordingURL string `json:"recordingUrl,omitempty"`
}

type VapiAnalysis struct {
	Summary           string         `json:"summary,omitempty"`
	StructuredData    map[string]any `json:"structuredData,omitempty"`
	SuccessEvaluation any            `json:"successEvaluation,omitempty"`
}

// FlexTime accepts RFC 3339 strings or unix milliseconds; anything else decodes to zero.
type FlexTime struct{ time.Time }

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
		}
		return nil
	}
	if ms, err := strconv.ParseFloat(string(b), 64); err == nil && ms > 0 {
		t.Time = time.UnixMilli(int64(ms)).UTC()
	}
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Ptr returns nil for the zero time.
func (t FlexTime) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// FlexFloat accepts JSON numbers or numeric strings.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		f.Value, f.Valid = v, true
	}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// meta returns the merged metadata of the call and its assistant overrides.
func (c VapiCall) meta() map[string]any {
	out := map[string]any{}
	if c.AssistantOverrides != nil {
		for k, v := range c.AssistantOverrides.Metadata {
			out[k] = v
		}
	}
	for k, v := range c.Metadata {
		out[k] = v
	}
	return out
}

// TenantHint returns a tenant id embedded in call metadata.
func (c VapiCall) TenantHint() string {
	return metaString(c.meta(), "tenantId", "tenant_id", "organizationId")
}

// LifecycleEvent converts the call object into a lifecycle patch.
func (c VapiCall) LifecycleEvent() calls.Event {
	m := c.meta()
	ev := calls.Event{
		ExternalID:  c.ID,
		InternalID:  metaString(m, "internalCallId", "internal_call_id", "callId"),
		TenantID:    c.TenantHint(),
		LeadID:      metaString(m, "leadId", "lead_id"),
		CampaignID:  metaString(m, "campaignId", "campaign_id"),
		AssistantID: c.AssistantID,
		StartedAt:   c.StartedAt.Ptr(),
		EndedAt:     c.EndedAt.Ptr(),
		Cost:        c.Cost.Ptr(),
		EndedReason: c.EndedReason,
		Summary:     firstNonEmpty(c.Summary, analysisSummary(c.Analysis)),
		Transcript:  firstNonEmpty(artifactTranscript(c.Artifact), c.Transcript),
		RecordingURL: firstNonEmpty(
			artifactRecording(c.Artifact),
			c.RecordingURL,
		),
	}
	switch c.Type {
	case "inboundPhoneCall":
		ev.Direction = calls.DirectionInbound
	case "outboundPhoneCall":
		ev.Direction = calls.DirectionOutbound
	}
	if c.Customer != nil {
		ev.CustomerNumber = c.Customer.Number
	}
	if c.PhoneNumber != nil {
		ev.PhoneNumber = c.PhoneNumber.Number
	}
	if c.Status != "" {
		ev.Status = mapVapiStatus(c.Status, c.EndedReason)
	}
	if ev.StartedAt != nil && ev.EndedAt != nil && ev.EndedAt.After(*ev.StartedAt) {
		d := ev.EndedAt.Sub(*ev.StartedAt).Seconds()
		ev.DurationSeconds = &d
	}
	extra := map[string]any{}
	if c.Analysis != nil && len(c.Analysis.StructuredData) > 0 {
		extra["provider_analysis"] = c.Analysis.StructuredData
	}
	if v := metaString(m, "campaignName", "campaign_name"); v != "" {
		extra["campaign_name"] = v
	}
	if v := metaString(m, "callingCompany", "calling_company", "companyName"); v != "" {
		extra["calling_company"] = v
	}
	if len(extra) > 0 {
		ev.Metadata = extra
	}
	return ev
}

func mapVapiStatus(status, endedReason string) calls.CallStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "queued", "scheduled":
		return calls.StatusQueued
	case "ringing":
		return calls.StatusRinging
	case "in-progress", "in_progress":
		return calls.StatusInProgress
	case "forwarding":
		return calls.StatusTransferring
	case "on-hold", "on_hold":
		return calls.StatusOnHold
	case "ended":
		return calls.TerminalStatusFromReason(endedReason)
	default:
		return ""
	}
}

func metaString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch s := v.(type) {
			case string:
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func analysisSummary(a *VapiAnalysis) string {
	if a == nil {
		return ""
	}
	return a.Summary
}

func artifactTranscript(a *VapiArtifact) string {
	if a == nil {
		return ""
	}
	return a.Transcript
}

func artifactRecording(a *VapiArtifact) string {
	if a == nil {
		return ""
	}
	return a.RecordingURL
}
