// Package ingest runs the post-ack webhook pipeline: dedupe, identity,
// reconciliation and the side effects that follow a call's lifecycle.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-platform/internal/appointments"
	"voice-platform/internal/calls"
	"voice-platform/internal/events"
	"voice-platform/internal/extraction"
	"voice-platform/internal/jobs"
	"voice-platform/internal/leads"
	"voice-platform/internal/metrics"
	"voice-platform/internal/reporting"
	"voice-platform/internal/telephony"
	"voice-platform/internal/tenancy"
	"voice-platform/pkg/logger"
)

const (
	KindReplay  = "webhook.replay"
	KindExtract = "call.extract"
)

// Replay is the payload of a webhook.replay job.
type Replay struct {
	EventID string `json:"event_id"`
}

// Extract is the payload of a call.extract job.
type Extract struct {
	CallID string `json:"call_id"`
}

type EventStore interface {
	Key(provider events.Provider, eventID, eventType, callID string, at time.Time) string
	Record(ctx context.Context, e events.WebhookEvent) (events.WebhookEvent, bool, error)
	Get(ctx context.Context, id string) (events.WebhookEvent, error)
	Reset(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

type IdentityResolver interface {
	Resolve(ctx context.Context, in tenancy.Input) tenancy.Resolution
}

type Reconciler interface {
	Apply(ctx context.Context, ev calls.Event) (calls.Outcome, error)
}

type CallStore interface {
	Get(ctx context.Context, id string) (calls.CallRecord, error)
	SaveAnalysis(ctx context.Context, id string, a calls.Analysis) (calls.CallRecord, error)
}

type Aggregates interface {
	RecomputeCampaign(ctx context.Context, tenantID, campaignID string) (reporting.CampaignMetrics, error)
}

type TranscriptScheduler interface {
	Schedule(ctx context.Context, rec calls.CallRecord) error
}

type Extractor interface {
	Run(ctx context.Context, transcript string, c extraction.Context) extraction.Result
}

type LeadMaterializer interface {
	Materialize(ctx context.Context, rec calls.CallRecord, r extraction.Result, c extraction.Context) (leads.Lead, bool, error)
}

type AppointmentCreator interface {
	Create(ctx context.Context, a appointments.Appointment) (appointments.Appointment, bool, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, s jobs.Spec) (bool, error)
}

// Deps wires the processor. Aggregates, Transcripts, Leads and Appointments
// are optional.
type Deps struct {
	Events       EventStore
	Identity     IdentityResolver
	Reconciler   Reconciler
	Calls        CallStore
	Jobs         Enqueuer
	Extractor    Extractor
	Aggregates   Aggregates
	Transcripts  TranscriptScheduler
	Leads        LeadMaterializer
	Appointments AppointmentCreator
	Metrics      *metrics.Metrics
}

type Processor struct {
	d Deps
}

func NewProcessor(d Deps) *Processor {
	return &Processor{d: d}
}

// HandleWebhook processes one webhook.ingest job.
func (p *Processor) HandleWebhook(ctx context.Context, job jobs.Job) error {
	var req telephony.IngestRequest
	if err := job.Decode(&req); err != nil {
		return jobs.Permanent(err)
	}
	pe, err := req.Parse()
	if err != nil {
		return jobs.Permanent(err)
	}

	at := pe.OccurredAt
	if at.IsZero() {
		at = req.ReceivedAt
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return jobs.Permanent(err)
	}
	ev, inserted, err := p.d.Events.Record(ctx, events.WebhookEvent{
		IdempotencyKey: p.d.Events.Key(pe.Provider, pe.EventID, pe.Type, pe.CallID(), at),
		Provider:       pe.Provider,
		Type:           pe.Type,
		CallExternalID: pe.Call.ExternalID,
		TenantID:       firstNonEmpty(pe.TenantHint, req.TenantHint),
		Payload:        payload,
		ReceivedAt:     req.ReceivedAt,
	})
	if err != nil {
		// Nothing stored yet; let the pool retry.
		return fmt.Errorf("record event: %w", err)
	}
	if !inserted {
		p.d.Metrics.RecordWebhookOutcome("duplicate")
		logger.From(ctx).Info("webhook duplicate ignored", "type", pe.Type, "external_call_id", pe.CallID())
		return nil
	}
	p.process(ctx, ev, req, pe)
	return nil
}

// HandleReplay re-runs a stored event regardless of its current status.
func (p *Processor) HandleReplay(ctx context.Context, job jobs.Job) error {
	var r Replay
	if err := job.Decode(&r); err != nil {
		return jobs.Permanent(err)
	}
	ev, err := p.d.Events.Get(ctx, r.EventID)
	if errors.Is(err, events.ErrNotFound) {
		return jobs.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	var req telephony.IngestRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil {
		_ = p.d.Events.MarkFailed(ctx, ev.ID, err)
		return jobs.Permanent(err)
	}
	pe, err := req.Parse()
	if err != nil {
		_ = p.d.Events.MarkFailed(ctx, ev.ID, err)
		return jobs.Permanent(err)
	}
	if err := p.d.Events.Reset(ctx, ev.ID); err != nil {
		return fmt.Errorf("reset event: %w", err)
	}
	logger.From(ctx).Info("webhook replay", "event_id", ev.ID, "type", ev.Type)
	p.process(ctx, ev, req, pe)
	return nil
}

// process runs identity, reconciliation and side effects for a stored event.
// Failures are recorded on the event and never surface to the job runner.
func (p *Processor) process(ctx context.Context, ev events.WebhookEvent, req telephony.IngestRequest, pe telephony.ProviderEvent) {
	log := logger.From(ctx).With("event_id", ev.ID, "type", pe.Type, "external_call_id", pe.CallID())

	res := tenancy.Resolution{TenantID: firstNonEmpty(pe.TenantHint, req.TenantHint)}
	if p.d.Identity != nil {
		res = p.d.Identity.Resolve(ctx, pe.IdentityInput(req.TenantHint))
	}
	if res.HintConflict {
		p.fail(ctx, log, ev.ID, fmt.Errorf("tenant hint for call %s: %w", res.CallID, calls.ErrTenantMismatch))
		return
	}
	if !res.Known() {
		log.Warn("webhook tenant unresolved, processing without tenant side effects")
	}

	patch := pe.Call
	if patch.TenantID == "" {
		patch.TenantID = res.TenantID
	}
	if patch.InternalID == "" && patch.ExternalID == "" {
		patch.InternalID = res.CallID
	}

	out, err := p.d.Reconciler.Apply(ctx, patch)
	if err != nil {
		p.fail(ctx, log, ev.ID, err)
		return
	}
	rec := out.Record
	log = log.With("call_id", rec.ID, "tenant_id", rec.TenantID)

	if err := p.sideEffects(ctx, out); err != nil {
		p.fail(ctx, log, ev.ID, err)
		return
	}
	if err := p.d.Events.MarkProcessed(ctx, ev.ID); err != nil {
		log.Error("webhook mark processed failed", "err", err)
	}
	p.d.Metrics.RecordWebhookOutcome("processed")
	log.Info("webhook processed", "status", string(rec.Status), "created", out.Created)
}

func (p *Processor) sideEffects(ctx context.Context, out calls.Outcome) error {
	rec := out.Record
	if p.d.Aggregates != nil && out.Ended && out.UsageReported && rec.TenantID != "" && rec.CampaignID != "" {
		if _, err := p.d.Aggregates.RecomputeCampaign(ctx, rec.TenantID, rec.CampaignID); err != nil {
			return fmt.Errorf("recompute campaign: %w", err)
		}
	}
	switch {
	case out.NeedsExtraction():
		if err := p.EnqueueExtraction(ctx, rec); err != nil {
			return err
		}
	case out.NeedsTranscriptPoll() && p.d.Transcripts != nil:
		if err := p.d.Transcripts.Schedule(ctx, rec); err != nil {
			return fmt.Errorf("schedule transcript poll: %w", err)
		}
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, eventID string, cause error) {
	p.d.Metrics.RecordWebhookOutcome("failed")
	log.Error("webhook processing failed", "err", cause)
	if err := p.d.Events.MarkFailed(ctx, eventID, cause); err != nil {
		log.Error("webhook mark failed failed", "err", err)
	}
}

// ExtractionQueue queues call analysis. One job per call is pending at a time.
type ExtractionQueue struct {
	Jobs Enqueuer
}

func (q ExtractionQueue) EnqueueExtraction(ctx context.Context, rec calls.CallRecord) error {
	_, err := q.Jobs.Enqueue(ctx, jobs.Spec{
		Queue:       jobs.QueueExtraction,
		Kind:        KindExtract,
		ID:          "extract:" + rec.ID,
		Payload:     Extract{CallID: rec.ID},
		MaxAttempts: 3,
	})
	if err != nil {
		return fmt.Errorf("enqueue extraction: %w", err)
	}
	return nil
}

func (p *Processor) EnqueueExtraction(ctx context.Context, rec calls.CallRecord) error {
	return ExtractionQueue{Jobs: p.d.Jobs}.EnqueueExtraction(ctx, rec)
}

// HandleExtraction analyzes one ended call and materializes its lead.
func (p *Processor) HandleExtraction(ctx context.Context, job jobs.Job) error {
	var x Extract
	if err := job.Decode(&x); err != nil {
		return jobs.Permanent(err)
	}
	rec, err := p.d.Calls.Get(ctx, x.CallID)
	if errors.Is(err, calls.ErrNotFound) {
		return jobs.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("load call: %w", err)
	}
	log := logger.From(ctx).With("call_id", rec.ID, "tenant_id", rec.TenantID)
	if rec.AnalyzedAt != nil {
		log.Debug("extraction skipped: already analyzed")
		return nil
	}
	if strings.TrimSpace(rec.Transcript) == "" {
		return jobs.Permanent(errors.New("call has no transcript"))
	}

	xc := extractionContext(rec)
	r := p.d.Extractor.Run(ctx, rec.Transcript, xc)

	var lead leads.Lead
	if r.IsQualifiedLead && p.d.Leads != nil {
		l, _, err := p.d.Leads.Materialize(ctx, rec, r, xc)
		switch {
		case err == nil:
			lead = l
		case errors.Is(err, leads.ErrNoTenant), errors.Is(err, leads.ErrNoPhone):
			log.Warn("lead skipped", "err", err)
		default:
			log.Error("lead materialization failed", "err", err)
		}
	}

	meta := r.Metadata()
	meta["qualified"] = r.IsQualifiedLead
	saved, err := p.d.Calls.SaveAnalysis(ctx, rec.ID, calls.Analysis{
		Outcome:    r.Outcome,
		Sentiment:  r.Sentiment,
		Summary:    r.Summary,
		LeadID:     lead.ID,
		Metadata:   meta,
		AnalyzedAt: r.ExtractedAt,
	})
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}

	if lead.ID != "" && r.Appointment.Requested && p.d.Appointments != nil {
		if _, _, err := p.d.Appointments.Create(ctx, appointments.Appointment{
			TenantID: saved.TenantID,
			LeadID:   lead.ID,
			CallID:   saved.ID,
			Date:     r.Appointment.Date,
			Time:     r.Appointment.Time,
			Type:     r.Appointment.Type,
			Notes:    r.Summary,
		}); err != nil {
			log.Error("appointment create failed", "err", err)
		}
	}
	if p.d.Aggregates != nil && saved.TenantID != "" && saved.CampaignID != "" {
		if _, err := p.d.Aggregates.RecomputeCampaign(ctx, saved.TenantID, saved.CampaignID); err != nil {
			log.Error("campaign recompute after analysis failed", "err", err)
		}
	}
	return nil
}

func extractionContext(rec calls.CallRecord) extraction.Context {
	str := func(k string) string {
		s, _ := rec.Metadata[k].(string)
		return s
	}
	return extraction.Context{
		CallID:          rec.ID,
		TenantID:        rec.TenantID,
		CustomerNumber:  rec.CustomerNumber,
		CampaignID:      rec.CampaignID,
		CampaignName:    str("campaign_name"),
		CallingCompany:  str("calling_company"),
		DurationSeconds: rec.DurationSeconds,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
