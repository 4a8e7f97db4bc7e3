package extraction

import "strings"

// Policy tunes the qualification decision.
type Policy struct {
	// InterestThreshold is the minimum interest level that qualifies on its own.
	InterestThreshold int
}

func (p Policy) threshold() int {
	if p.InterestThreshold <= 0 {
		return 6
	}
	return p.InterestThreshold
}

// negativePhrases force disqualification when the customer says them.
var negativePhrases = []string{
	"not interested",
	"no interest",
	"remove me",
	"take me off the list",
	"take me off your list",
	"take me off your calling list",
	"do not call",
	"don't call me",
	"stop calling",
	"unsubscribe",
}

// Qualify decides IsQualifiedLead from the normalized fields. Positive signals
// are evaluated first; negative consent then overrides them and caps interest at 3.
// The capability's own flag is ignored.
func Qualify(r Result, transcript string, p Policy) Result {
	r.IsQualifiedLead = r.Qualification.InterestLevel >= p.threshold() ||
		r.Appointment.Requested ||
		r.Signals.PricingRequested ||
		r.Signals.ContactInfoGiven ||
		r.Signals.CallbackRequested

	if r.Signals.NegativeConsent || NegativeConsent(transcript) {
		r.Signals.NegativeConsent = true
		r.IsQualifiedLead = false
		if r.Qualification.InterestLevel > 3 {
			r.Qualification.InterestLevel = 3
		}
	}
	return r
}

// NegativeConsent reports whether the customer side of transcript contains an
// opt-out phrase.
func NegativeConsent(transcript string) bool {
	text := strings.ToLower(customerText(transcript))
	for _, p := range negativePhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
