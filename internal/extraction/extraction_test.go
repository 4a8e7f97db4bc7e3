package extraction

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Aliases(t *testing.T) {
	cases := map[string]map[string]any{
		"flat fullName": {"fullName": "Ada Lovelace"},
		"flat name":     {"name": "Ada Lovelace"},
		"nested prospect": {"PROSPECT_INFORMATION": map[string]any{"Full name": "Ada Lovelace"}},
		"contact split":   {"contact": map[string]any{"first_name": "Ada", "last_name": "Lovelace"}},
	}
	for name, raw := range cases {
		r := Normalize(raw)
		if r.Contact.FullName != "Ada Lovelace" {
			t.Fatalf("%s: expected full name, got %q", name, r.Contact.FullName)
		}
		if r.Contact.FirstName != "Ada" || r.Contact.LastName != "Lovelace" {
			t.Fatalf("%s: expected split name, got %q %q", name, r.Contact.FirstName, r.Contact.LastName)
		}
	}
}

func TestNormalize_CoercesAndClamps(t *testing.T) {
	r := Normalize(map[string]any{
		"qualification": map[string]any{"interestLevel": "14/10"},
		"objections":    "price too high; already have a vendor",
		"confidence":    85.0,
		"email":         "not provided",
		"sentiment":     "Very Positive",
	})
	assert.Equal(t, 10, r.Qualification.InterestLevel)
	assert.Equal(t, []string{"price too high", "already have a vendor"}, r.Objections)
	assert.NotNil(t, r.Questions)
	assert.Empty(t, r.Questions)
	assert.InDelta(t, 0.85, r.Confidence, 1e-9)
	assert.Empty(t, r.Contact.Email)
	assert.Equal(t, "positive", r.Sentiment)

	low := Normalize(map[string]any{"interest": -4.0})
	assert.Equal(t, 1, low.Qualification.InterestLevel)

	unknown := Normalize(map[string]any{})
	assert.Equal(t, 0, unknown.Qualification.InterestLevel)
}

func TestNormalize_Appointment(t *testing.T) {
	r := Normalize(map[string]any{
		"appointment": map[string]any{"date": "2026-11-02", "time": "14:30", "type": "demo"},
	})
	assert.True(t, r.Appointment.Requested)
	assert.Equal(t, "2026-11-02", r.Appointment.Date)

	r = Normalize(map[string]any{"appointmentRequested": "yes"})
	assert.True(t, r.Appointment.Requested)
}

func TestQualify(t *testing.T) {
	policy := Policy{InterestThreshold: 6}

	r := Result{Qualification: Qualification{InterestLevel: 8}, Appointment: Appointment{Requested: true}}
	if got := Qualify(r, "User: sure, next Tuesday works", policy); !got.IsQualifiedLead {
		t.Fatalf("expected qualified")
	}

	r = Result{Qualification: Qualification{InterestLevel: 8}}
	got := Qualify(r, "AI: would you like to hear more?\nUser: honestly I'm not interested", policy)
	if got.IsQualifiedLead {
		t.Fatalf("negative consent must force disqualification")
	}
	if got.Qualification.InterestLevel > 3 {
		t.Fatalf("expected interest clamped to <=3, got %d", got.Qualification.InterestLevel)
	}

	r = Result{Qualification: Qualification{InterestLevel: 5}}
	if Qualify(r, "", policy).IsQualifiedLead {
		t.Fatalf("interest 5 alone must not qualify")
	}
	for name, s := range map[string]Signals{
		"pricing":  {PricingRequested: true},
		"contact":  {ContactInfoGiven: true},
		"callback": {CallbackRequested: true},
	} {
		if !Qualify(Result{Signals: s}, "", policy).IsQualifiedLead {
			t.Fatalf("%s: expected qualified", name)
		}
	}

	yes := true
	r = Result{ModelQualified: &yes}
	if Qualify(r, "", policy).IsQualifiedLead {
		t.Fatalf("model flag alone must not qualify")
	}
}

func TestNegativeConsent_IgnoresAgentLines(t *testing.T) {
	tr := "AI: if you're not interested just say so\nUser: no, tell me more"
	if NegativeConsent(tr) {
		t.Fatalf("agent phrasing must not count as customer refusal")
	}
	if !NegativeConsent("please take me off the list") {
		t.Fatalf("unlabelled transcript must be scanned whole")
	}
}

func TestHeuristic(t *testing.T) {
	tr := "AI: Hi, this is Sam from Acme.\nUser: Hi, my name is Grace Hopper.\nUser: You can email me at Grace@Example.com\nUser: How much does it cost?"
	r := Heuristic(tr, Context{})

	assert.Equal(t, SourceHeuristic, r.Source)
	assert.Equal(t, "Grace Hopper", r.Contact.FullName)
	assert.Equal(t, "grace@example.com", r.Contact.Email)
	assert.True(t, r.Signals.ContactInfoGiven)
	assert.True(t, r.Signals.PricingRequested)
	assert.Equal(t, []string{"How much does it cost?"}, r.Questions)
}

type failingCapability struct{}

func (failingCapability) Extract(ctx context.Context, transcript string, c Context) (map[string]any, error) {
	return nil, errors.New("capability timeout")
}

func TestPipeline_FallbackQualifiesDemoRequest(t *testing.T) {
	p := NewPipeline(failingCapability{}, Policy{InterestThreshold: 6}, nil)
	r := p.Run(context.Background(), "AI: Anything else?\nUser: Yes, I'd like to schedule a demo for my team.", Context{CustomerNumber: "+15551230000"})

	if r.Source != SourceHeuristic {
		t.Fatalf("expected heuristic source, got %q", r.Source)
	}
	if !r.IsQualifiedLead {
		t.Fatalf("expected demo request to qualify via heuristic")
	}
	if !r.Appointment.Requested || r.Appointment.Type != "demo" {
		t.Fatalf("expected demo appointment, got %+v", r.Appointment)
	}
	if r.Contact.Phone != "+15551230000" {
		t.Fatalf("expected customer number as contact phone, got %q", r.Contact.Phone)
	}
}

func TestParseJSON_StripsFences(t *testing.T) {
	out, err := ParseJSON("```json\n{\"fullName\": \"Ada\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Ada", out["fullName"])

	_, err = ParseJSON("no json here")
	assert.Error(t, err)
}

func TestOpenAIExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-tenant", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"qualification\":{\"interestLevel\":7},\"contact\":{\"fullName\":\"Ada\"}}"}}]}`))
	}))
	defer srv.Close()

	ex := NewOpenAIExtractor(OpenAIConfig{BaseURL: srv.URL}, func(ctx context.Context, tenantID string) (string, error) {
		return "sk-tenant", nil
	})
	raw, err := ex.Extract(context.Background(), "User: hello", Context{TenantID: "t1"})
	require.NoError(t, err)

	r := Normalize(raw)
	assert.Equal(t, 7, r.Qualification.InterestLevel)
	assert.Equal(t, "Ada", r.Contact.FullName)
}

func TestOpenAIExtractor_NoKey(t *testing.T) {
	ex := NewOpenAIExtractor(OpenAIConfig{}, func(ctx context.Context, tenantID string) (string, error) { return "", nil })
	_, err := ex.Extract(context.Background(), "x", Context{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
