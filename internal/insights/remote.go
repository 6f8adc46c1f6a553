package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const adviceSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "description", "recommendation"],
  "properties": {
    "title":          {"type": "string", "minLength": 1, "maxLength": 120},
    "description":    {"type": "string", "minLength": 1, "maxLength": 600},
    "recommendation": {"type": "string", "minLength": 1, "maxLength": 600}
  }
}`

const systemPrompt = "You phrase short personalized recommendations for a crypto airdrop app. " +
	"Reply with a JSON object with the string fields title, description and recommendation. " +
	"Be concrete, friendly and never give financial advice about specific tokens."

var (
	adviceSchemaOnce sync.Once
	adviceSchemaC    *gojsonschema.Schema
	adviceSchemaErr  error
)

func compiledAdviceSchema() (*gojsonschema.Schema, error) {
	adviceSchemaOnce.Do(func() {
		adviceSchemaC, adviceSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(adviceSchema))
	})
	return adviceSchemaC, adviceSchemaErr
}

// RemoteAdvisor calls an OpenAI-compatible chat completions endpoint.
// Every failure is reported as ErrAdvisoryUnavailable.
type RemoteAdvisor struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewRemoteAdvisor builds an advisor from cfg. When TokenURL is set the
// HTTP client fetches tokens with the OAuth2 client-credentials flow;
// otherwise APIKey is sent as a bearer token.
func NewRemoteAdvisor(cfg config.AdvisoryConfig) *RemoteAdvisor {
	client := &http.Client{Timeout: 30 * time.Second}
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(context.Background())
		client.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = max(1, int(cfg.RatePerSec))
	}

	return &RemoteAdvisor{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http:     client,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Advise sends one structured prompt. It waits for the rate limiter, so a
// deadline on ctx bounds the wait as well as the request.
func (a *RemoteAdvisor) Advise(ctx context.Context, f Finding) (Advice, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Advice{}, fmt.Errorf("%w: rate limit: %v", ErrAdvisoryUnavailable, err)
	}

	prompt, err := json.Marshal(map[string]any{
		"insight_type": f.Type,
		"impact":       f.Impact,
		"data":         f.Data,
	})
	if err != nil {
		return Advice{}, fmt.Errorf("%w: encode prompt: %v", ErrAdvisoryUnavailable, err)
	}
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(prompt)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Advice{}, fmt.Errorf("%w: encode request: %v", ErrAdvisoryUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Advice{}, fmt.Errorf("%w: %v", ErrAdvisoryUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return Advice{}, fmt.Errorf("%w: %v", ErrAdvisoryUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Advice{}, fmt.Errorf("%w: read response: %v", ErrAdvisoryUnavailable, err)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Advice{}, fmt.Errorf("%w: http %d: %v", ErrAdvisoryUnavailable, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return Advice{}, fmt.Errorf("%w: http %d: %s", ErrAdvisoryUnavailable, resp.StatusCode, msg)
	}
	if len(out.Choices) == 0 {
		return Advice{}, fmt.Errorf("%w: empty choices", ErrAdvisoryUnavailable)
	}
	return parseAdvice(out.Choices[0].Message.Content)
}

func parseAdvice(content string) (Advice, error) {
	schema, err := compiledAdviceSchema()
	if err != nil {
		return Advice{}, fmt.Errorf("compile advice schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return Advice{}, fmt.Errorf("%w: response is not JSON", ErrAdvisoryUnavailable)
	}
	if !result.Valid() {
		return Advice{}, fmt.Errorf("%w: response failed schema: %s", ErrAdvisoryUnavailable, result.Errors()[0].String())
	}

	var adv Advice
	if err := json.Unmarshal([]byte(content), &adv); err != nil {
		return Advice{}, fmt.Errorf("%w: %v", ErrAdvisoryUnavailable, err)
	}
	return adv, nil
}
