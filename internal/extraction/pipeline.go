package extraction

import (
	"context"
	"time"

	"voice-platform/internal/metrics"
	"voice-platform/pkg/logger"
)

// Pipeline runs the capability, falls back to Heuristic on any failure, and
// applies the qualification policy.
type Pipeline struct {
	ai      Capability
	policy  Policy
	metrics *metrics.Metrics
	clock   func() time.Time
}

func NewPipeline(ai Capability, policy Policy, m *metrics.Metrics) *Pipeline {
	return &Pipeline{ai: ai, policy: policy, metrics: m, clock: time.Now}
}

func (p *Pipeline) Run(ctx context.Context, transcript string, c Context) Result {
	log := logger.From(ctx)

	var r Result
	ok := false
	if p.ai != nil {
		raw, err := p.ai.Extract(ctx, transcript, c)
		if err != nil {
			log.Warn("extraction: capability failed, using heuristic", "call_id", c.CallID, "err", err)
		} else {
			r, ok = Normalize(raw), true
		}
	}
	if !ok {
		r = Heuristic(transcript, c)
	}

	if r.Contact.Phone == "" {
		r.Contact.Phone = c.CustomerNumber
	}
	r.ExtractedAt = p.clock().UTC()
	r = Qualify(r, transcript, p.policy)

	p.metrics.RecordExtraction(string(r.Source))
	log.Info("extraction: done",
		"call_id", c.CallID,
		"source", string(r.Source),
		"interest", r.Qualification.InterestLevel,
		"qualified", r.IsQualifiedLead,
	)
	return r
}
