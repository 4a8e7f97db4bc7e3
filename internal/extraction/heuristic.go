package extraction

import (
	"regexp"
	"strings"
	"time"
)

var (
	reName  = regexp.MustCompile(`(?:[Mm]y name is|[Mm]y name's|[Tt]his is|I'm|I am|[Ii]t's)\s+([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+)?)`)
	reEmail = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	rePhone = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// Speaker prefixes that mark the customer side of a transcript.
var customerPrefixes = []string{"user:", "customer:", "caller:", "human:"}
var agentPrefixes = []string{"ai:", "assistant:", "bot:", "agent:"}

var (
	appointmentPhrases = []string{"schedule a demo", "book a demo", "set up a demo", "schedule a meeting", "book a meeting", "set up a call", "schedule a call", "book an appointment", "schedule an appointment"}
	pricingPhrases     = []string{"pricing", "how much", "price", "quote", "proposal", "cost"}
	callbackPhrases    = []string{"call me back", "call back", "callback", "reach me", "try me again"}
	positivePhrases    = []string{"interested", "sounds good", "sounds great", "tell me more", "that works", "i'd like", "i would like", "sign up", "let's do it", "definitely"}
)

// Heuristic extracts what it can from transcript with regular expressions and
// keyword scoring. It never fails.
func Heuristic(transcript string, c Context) Result {
	customer := customerText(transcript)
	lower := strings.ToLower(customer)

	r := Result{
		Questions:     []string{},
		Objections:    []string{},
		BuyingSignals: []string{},
		NextSteps:     []string{},
		PainPoints:    []string{},
		Source:        SourceHeuristic,
		Confidence:    0.3,
	}

	if m := reName.FindStringSubmatch(customer); len(m) == 2 {
		r.Contact.FullName = m[1]
		splitName(&r.Contact)
	}
	if m := reEmail.FindString(customer); m != "" {
		r.Contact.Email = strings.ToLower(m)
	}
	if m := rePhone.FindString(customer); m != "" && digits(m) >= 7 {
		r.Contact.Phone = strings.TrimSpace(m)
	}
	r.Signals.ContactInfoGiven = r.Contact.Email != "" || r.Contact.Phone != ""

	score := 3
	if p := firstPhrase(lower, appointmentPhrases); p != "" {
		r.Appointment.Requested = true
		if strings.Contains(p, "demo") {
			r.Appointment.Type = "demo"
		} else {
			r.Appointment.Type = "meeting"
		}
		r.BuyingSignals = append(r.BuyingSignals, p)
		r.NextSteps = append(r.NextSteps, "confirm "+r.Appointment.Type+" time")
		score += 3
	}
	if p := firstPhrase(lower, pricingPhrases); p != "" {
		r.Signals.PricingRequested = true
		r.BuyingSignals = append(r.BuyingSignals, "asked about "+p)
		score += 2
	}
	if p := firstPhrase(lower, callbackPhrases); p != "" {
		r.Signals.CallbackRequested = true
		r.NextSteps = append(r.NextSteps, "call back")
		score++
	}
	for _, p := range positivePhrases {
		if strings.Contains(lower, p) && !strings.Contains(lower, "not "+p) {
			score++
		}
	}
	r.Qualification.InterestLevel = clampInterest(score)

	for _, line := range strings.Split(customer, "\n") {
		if strings.HasSuffix(strings.TrimSpace(line), "?") {
			r.Questions = append(r.Questions, strings.TrimSpace(line))
		}
	}

	switch {
	case NegativeConsent(transcript):
		r.Sentiment = "negative"
	case r.Qualification.InterestLevel >= 6:
		r.Sentiment = "positive"
	default:
		r.Sentiment = "neutral"
	}
	r.Summary = heuristicSummary(r, c)
	r.ExtractedAt = time.Now().UTC()
	return r
}

// customerText returns the customer lines of a speaker-labelled transcript,
// or the whole transcript when no labels are present.
func customerText(transcript string) string {
	lines := strings.Split(transcript, "\n")
	var out []string
	labelled := false
	for _, line := range lines {
		l := strings.ToLower(strings.TrimSpace(line))
		if p := prefixOf(l, customerPrefixes); p != "" {
			labelled = true
			out = append(out, strings.TrimSpace(strings.TrimSpace(line)[len(p):]))
			continue
		}
		if prefixOf(l, agentPrefixes) != "" {
			labelled = true
		}
	}
	if !labelled {
		return transcript
	}
	return strings.Join(out, "\n")
}

func prefixOf(line string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return p
		}
	}
	return ""
}

func firstPhrase(text string, phrases []string) string {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return p
		}
	}
	return ""
}

func digits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func heuristicSummary(r Result, c Context) string {
	var b strings.Builder
	b.WriteString("Keyword analysis")
	if c.DurationSeconds > 0 {
		b.WriteString(" of a ")
		b.WriteString(time.Duration(c.DurationSeconds * float64(time.Second)).Round(time.Second).String())
		b.WriteString(" call")
	}
	b.WriteString(": interest ")
	b.WriteString(strings.TrimSpace(str(float64(r.Qualification.InterestLevel))))
	b.WriteString("/10")
	if r.Appointment.Requested {
		b.WriteString(", requested a " + r.Appointment.Type)
	}
	if r.Signals.PricingRequested {
		b.WriteString(", asked about pricing")
	}
	if r.Signals.CallbackRequested {
		b.WriteString(", wants a callback")
	}
	b.WriteString(".")
	return b.String()
}
