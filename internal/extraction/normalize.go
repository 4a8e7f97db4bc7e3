package extraction

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Section aliases. "" is the root object.
var (
	contactSections       = []string{"", "contact", "contactInfo", "contactInformation", "prospect", "PROSPECT_INFORMATION", "lead", "customer"}
	qualificationSections = []string{"", "qualification", "qualificationMetrics", "leadQualification", "QUALIFICATION"}
	conversationSections  = []string{"", "conversation", "conversationAnalysis", "insights", "CONVERSATION_ANALYSIS"}
	appointmentSections   = []string{"appointment", "appointmentDetails", "meeting", "APPOINTMENT"}
	signalSections        = []string{"", "signals", "flags", "qualification"}
)

// Normalize maps a capability response of unknown shape onto Result. It tries
// several known aliases and nestings per field; fields it cannot find stay zero.
func Normalize(raw map[string]any) Result {
	var r Result
	if raw == nil {
		raw = map[string]any{}
	}

	c := &r.Contact
	c.FullName = str(pick(raw, contactSections, "fullName", "name", "Full name", "prospectName", "customerName"))
	c.FirstName = str(pick(raw, contactSections, "firstName", "first name", "givenName"))
	c.LastName = str(pick(raw, contactSections, "lastName", "last name", "surname", "familyName"))
	c.Email = strings.ToLower(str(pick(raw, contactSections, "email", "emailAddress", "Email address")))
	c.Phone = str(pick(raw, contactSections, "phone", "phoneNumber", "Phone number", "mobile"))
	c.Company = str(pick(raw, contactSections, "company", "companyName", "organization", "business"))
	c.Title = str(pick(raw, contactSections, "title", "jobTitle", "role", "position"))
	c.Street = str(pick(raw, contactSections, "street", "streetAddress", "address.street", "address"))
	c.City = str(pick(raw, contactSections, "city", "address.city"))
	c.State = str(pick(raw, contactSections, "state", "region", "province", "address.state"))
	c.PostalCode = str(pick(raw, contactSections, "postalCode", "zip", "zipCode", "address.postalCode", "address.zip"))
	c.Country = str(pick(raw, contactSections, "country", "address.country"))
	splitName(c)
	if !strings.Contains(c.Email, "@") {
		c.Email = ""
	}

	q := &r.Qualification
	q.InterestLevel = clampInterest(interest(pick(raw, qualificationSections, "interestLevel", "interest", "interestScore", "Interest level")))
	q.Budget = str(pick(raw, qualificationSections, "budget", "budgetRange"))
	q.Timeline = str(pick(raw, qualificationSections, "timeline", "timeframe", "purchaseTimeline"))
	q.DecisionAuthority = str(pick(raw, qualificationSections, "decisionAuthority", "decisionMaker", "authority"))

	r.Questions = strs(pick(raw, conversationSections, "questions", "questionsAsked", "keyQuestions"))
	r.Objections = strs(pick(raw, conversationSections, "objections", "concerns"))
	r.BuyingSignals = strs(pick(raw, conversationSections, "buyingSignals", "positiveSignals"))
	r.NextSteps = strs(pick(raw, conversationSections, "nextSteps", "actionItems", "followUp"))
	r.PainPoints = strs(pick(raw, conversationSections, "painPoints", "challenges", "problems"))

	a := &r.Appointment
	a.Date = str(pick(raw, appointmentSections, "date", "proposedDate"))
	a.Time = str(pick(raw, appointmentSections, "time", "proposedTime"))
	a.Type = str(pick(raw, appointmentSections, "type", "appointmentType", "meetingType"))
	a.Requested = boolean(pick(raw, appointmentSections, "requested", "proposed", "scheduled")) ||
		boolean(pick(raw, []string{""}, "appointmentRequested", "appointmentProposed", "wantsAppointment", "meetingRequested"))
	if a.Date == "" {
		a.Date = str(pick(raw, []string{""}, "appointmentDate"))
	}
	if a.Time == "" {
		a.Time = str(pick(raw, []string{""}, "appointmentTime"))
	}
	if a.Date != "" || a.Time != "" {
		a.Requested = true
	}

	s := &r.Signals
	s.PricingRequested = boolean(pick(raw, signalSections, "pricingRequested", "proposalRequested", "requestedPricing", "wantsPricing"))
	s.ContactInfoGiven = boolean(pick(raw, signalSections, "contactInfoGiven", "contactInfoProvided", "providedContactInfo"))
	s.CallbackRequested = boolean(pick(raw, signalSections, "callbackRequested", "requestedCallback", "wantsCallback"))
	s.NegativeConsent = boolean(pick(raw, signalSections, "notInterested", "negativeConsent", "doNotCall", "optOut"))

	r.Sentiment = sentiment(str(pick(raw, conversationSections, "sentiment", "overallSentiment", "customerSentiment")))
	r.Outcome = str(pick(raw, conversationSections, "outcome", "callOutcome", "result"))
	r.Summary = str(pick(raw, conversationSections, "summary", "callSummary", "notes"))
	r.Confidence = confidence(pick(raw, []string{""}, "confidence", "confidenceScore"))

	if v := pick(raw, []string{"", "qualification"}, "isQualifiedLead", "qualified", "isQualified"); v != nil {
		b := boolean(v)
		r.ModelQualified = &b
	}

	r.Source = SourceAI
	return r
}

// pick returns the first value found for any key inside any section. Keys may
// be dotted paths; matching ignores case, spaces and punctuation.
func pick(raw map[string]any, sections []string, keys ...string) any {
	for _, sec := range sections {
		m := raw
		if sec != "" {
			v, ok := lookup(raw, sec)
			if !ok {
				continue
			}
			if m, ok = v.(map[string]any); !ok {
				continue
			}
		}
		for _, k := range keys {
			if v, ok := lookup(m, k); ok && !empty(v) {
				return v
			}
		}
	}
	return nil
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		want := canonical(seg)
		found := false
		for k, v := range obj {
			if canonical(k) == want {
				cur, found = v, true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return cur, true
}

func canonical(k string) string {
	var b strings.Builder
	for _, r := range k {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

var placeholders = map[string]bool{"n/a": true, "na": true, "none": true, "null": true, "unknown": true, "not provided": true, "-": true}

func str(v any) string {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if placeholders[strings.ToLower(s)] {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	return ""
}

func strs(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, x := range t {
			if s := str(x); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, x := range t {
			if s := str(x); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.FieldsFunc(t, func(r rune) bool { return r == ';' || r == '\n' }) {
			if s := str(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func boolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}

var leadingNumber = regexp.MustCompile(`-?\d+(\.\d+)?`)

func interest(v any) int {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t))
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "very high":
			return 9
		case "high":
			return 8
		case "medium", "moderate":
			return 5
		case "low":
			return 2
		}
		if m := leadingNumber.FindString(s); m != "" {
			f, _ := strconv.ParseFloat(m, 64)
			return int(math.Round(f))
		}
	}
	return 0
}

// clampInterest keeps a known level inside 1..10; 0 stays unknown.
func clampInterest(n int) int {
	switch {
	case n == 0:
		return 0
	case n < 1:
		return 1
	case n > 10:
		return 10
	}
	return n
}

func confidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	return math.Max(0, math.Min(1, f))
}

func sentiment(s string) string {
	l := strings.ToLower(s)
	switch {
	case l == "":
		return ""
	case strings.Contains(l, "pos"):
		return "positive"
	case strings.Contains(l, "neg"):
		return "negative"
	}
	return "neutral"
}

func splitName(c *Contact) {
	switch {
	case c.FullName != "" && c.FirstName == "" && c.LastName == "":
		parts := strings.Fields(c.FullName)
		c.FirstName = parts[0]
		if len(parts) > 1 {
			c.LastName = strings.Join(parts[1:], " ")
		}
	case c.FullName == "" && (c.FirstName != "" || c.LastName != ""):
		c.FullName = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
}
