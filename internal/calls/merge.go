package calls

import (
	"strings"
	"time"
)

// Status ranks. The tens digit is the band; a higher band always wins.
// Inside the in-progress band the latest provider time wins; inside the
// terminal band the higher rank wins.
const (
	bandInProgress = 3
	bandTerminal   = 4
)

// Rank orders statuses so that applying events in any order converges.
// Unknown statuses rank 0 and never replace a known one.
func Rank(s CallStatus) int {
	switch s {
	case StatusQueued:
		return 10
	case StatusRinging:
		return 20
	case StatusInProgress, StatusTransferring, StatusOnHold:
		return 30
	case StatusCompleted:
		return 41
	case StatusHungUp:
		return 42
	case StatusNoAnswer:
		return 43
	case StatusBusy:
		return 44
	case StatusFailed:
		return 45
	default:
		return 0
	}
}

func IsTerminal(s CallStatus) bool {
	return Rank(s)/10 == bandTerminal
}

// StatusWins reports whether next (observed at nextAt) replaces cur (set at curAt).
func StatusWins(next CallStatus, nextAt time.Time, cur CallStatus, curAt *time.Time) bool {
	nr, cr := Rank(next), Rank(cur)
	if nr == 0 {
		return false
	}
	nb, cb := nr/10, cr/10
	if nb != cb {
		return nb > cb
	}
	if nb == bandInProgress && next != cur {
		if curAt == nil {
			return true
		}
		if !nextAt.Equal(*curAt) {
			return nextAt.After(*curAt)
		}
		return next > cur
	}
	if nr != cr {
		return nr > cr
	}
	return curAt == nil || nextAt.After(*curAt)
}

// TerminalStatusFromReason maps a provider ended reason onto a terminal status.
func TerminalStatusFromReason(reason string) CallStatus {
	r := strings.ToLower(strings.TrimSpace(reason))
	switch {
	case r == "":
		return StatusCompleted
	case strings.Contains(r, "busy"):
		return StatusBusy
	case strings.Contains(r, "did-not-answer"), strings.Contains(r, "no-answer"), strings.Contains(r, "voicemail"):
		return StatusNoAnswer
	case strings.Contains(r, "hung-up"), strings.Contains(r, "hangup"), r == "customer-ended-call-before-connect":
		return StatusHungUp
	case strings.Contains(r, "error"), strings.Contains(r, "failed"), strings.Contains(r, "fault"):
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// Merge applies ev to cur and returns the new record. cur is nil for a fresh call.
//
// Merge is commutative for every field it derives from events carrying
// consistent values: populated fields are never cleared, timestamps and usage
// converge to earliest/latest/max, and status follows Rank.
func Merge(cur *CallRecord, ev Event, now time.Time) CallRecord {
	now = now.UTC()
	var out CallRecord
	if cur != nil {
		out = *cur
		out.Metadata = cloneMap(cur.Metadata)
	} else {
		out = CallRecord{
			ID:               ev.InternalID,
			Status:           StatusQueued,
			TranscriptStatus: TranscriptPending,
			Metadata:         map[string]any{},
			CreatedAt:        now,
		}
	}

	fill(&out.ExternalID, ev.ExternalID)
	fill(&out.TenantID, ev.TenantID)
	fill(&out.LeadID, ev.LeadID)
	fill(&out.CampaignID, ev.CampaignID)
	if out.Direction == "" {
		out.Direction = ev.Direction
	}

	at := ev.At.UTC()
	if ev.At.IsZero() {
		at = now
	}
	if ev.Status != "" && StatusWins(ev.Status, at, out.Status, out.StatusAt) {
		out.Status = ev.Status
		out.StatusAt = &at
	}

	overwrite(&out.CustomerNumber, ev.CustomerNumber)
	overwrite(&out.PhoneNumber, ev.PhoneNumber)
	overwrite(&out.AssistantID, ev.AssistantID)
	overwrite(&out.RecordingURL, ev.RecordingURL)
	overwrite(&out.EndedReason, ev.EndedReason)
	overwrite(&out.Summary, ev.Summary)

	out.StartedAt = earliest(out.StartedAt, ev.StartedAt)
	out.EndedAt = latest(out.EndedAt, ev.EndedAt)
	if ev.DurationSeconds != nil && *ev.DurationSeconds > out.DurationSeconds {
		out.DurationSeconds = *ev.DurationSeconds
	}
	if ev.Cost != nil && *ev.Cost > out.Cost {
		out.Cost = *ev.Cost
	}

	if len(ev.Transcript) > len(out.Transcript) {
		out.Transcript = ev.Transcript
	}
	if out.Transcript != "" {
		out.TranscriptStatus = TranscriptAvailable
	} else if out.TranscriptStatus == "" {
		out.TranscriptStatus = TranscriptPending
	}

	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	for k, v := range ev.Metadata {
		out.Metadata[k] = v
	}
	out.UpdatedAt = now
	return out
}

// ApplyAnalysis merges extraction output onto a record.
func ApplyAnalysis(rec CallRecord, a Analysis) CallRecord {
	out := rec
	out.Metadata = cloneMap(rec.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	overwrite(&out.Outcome, a.Outcome)
	overwrite(&out.Sentiment, a.Sentiment)
	fill(&out.Summary, a.Summary)
	fill(&out.LeadID, a.LeadID)
	for k, v := range a.Metadata {
		out.Metadata[k] = v
	}
	at := a.AnalyzedAt.UTC()
	out.AnalyzedAt = &at
	out.UpdatedAt = at
	return out
}

func fill(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return utcPtr(b)
	case b == nil:
		return a
	case b.Before(*a):
		return utcPtr(b)
	default:
		return a
	}
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return utcPtr(b)
	case b == nil:
		return a
	case b.After(*a):
		return utcPtr(b)
	default:
		return a
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
