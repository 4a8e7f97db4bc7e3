package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

var ErrNoAPIKey = errors.New("extraction: no openai api key")

// KeyFunc resolves the OpenAI key for a tenant.
type KeyFunc func(ctx context.Context, tenantID string) (string, error)

type OpenAIConfig struct {
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API endpoint; empty uses OpenAI.
	BaseURL string
}

// OpenAIExtractor asks a chat model for the extraction JSON. Clients are
// created lazily per API key.
type OpenAIExtractor struct {
	cfg OpenAIConfig
	key KeyFunc

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAIExtractor(cfg OpenAIConfig, key KeyFunc) *OpenAIExtractor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &OpenAIExtractor{cfg: cfg, key: key, clients: map[string]*openai.Client{}}
}

const systemPrompt = `You analyze sales phone call transcripts. Answer with one JSON object only, using these keys:
{
  "contact": {"fullName": "", "email": "", "phone": "", "company": "", "title": "", "street": "", "city": "", "state": "", "postalCode": "", "country": ""},
  "qualification": {"interestLevel": 1-10, "budget": "", "timeline": "", "decisionAuthority": ""},
  "conversation": {"questions": [], "objections": [], "buyingSignals": [], "nextSteps": [], "painPoints": [], "sentiment": "positive|neutral|negative", "outcome": "", "summary": ""},
  "appointment": {"requested": false, "date": "YYYY-MM-DD", "time": "HH:MM", "type": ""},
  "signals": {"pricingRequested": false, "contactInfoGiven": false, "callbackRequested": false, "notInterested": false},
  "isQualifiedLead": false,
  "confidence": 0.0
}
Use empty strings or empty arrays when the transcript does not say. Only the customer's words count as consent or refusal.`

func (e *OpenAIExtractor) Extract(ctx context.Context, transcript string, c Context) (map[string]any, error) {
	client, err := e.client(ctx, c.TenantID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(transcript, c)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from openai")
	}
	return ParseJSON(resp.Choices[0].Message.Content)
}

func (e *OpenAIExtractor) client(ctx context.Context, tenantID string) (*openai.Client, error) {
	key, err := e.key(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve openai key: %w", err)
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[key]; ok {
		return c, nil
	}
	cfg := openai.DefaultConfig(key)
	if e.cfg.BaseURL != "" {
		cfg.BaseURL = e.cfg.BaseURL
	}
	c := openai.NewClientWithConfig(cfg)
	e.clients[key] = c
	return c, nil
}

func userPrompt(transcript string, c Context) string {
	var b strings.Builder
	b.WriteString("Call context:\n")
	if c.DurationSeconds > 0 {
		fmt.Fprintf(&b, "- duration: %.0f seconds\n", c.DurationSeconds)
	}
	if c.CustomerNumber != "" {
		fmt.Fprintf(&b, "- customer number: %s\n", c.CustomerNumber)
	}
	if c.CampaignName != "" {
		fmt.Fprintf(&b, "- campaign: %s\n", c.CampaignName)
	}
	if c.CallingCompany != "" {
		fmt.Fprintf(&b, "- calling company: %s\n", c.CallingCompany)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

// ParseJSON decodes a model reply, tolerating markdown code fences and prose
// around the object.
func ParseJSON(content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}
