package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
	"CallScorer/internal/ports"
)

var (
	// ErrMisconfigured is returned when endpoint, model or key are missing.
	ErrMisconfigured = errors.New("extraction client misconfigured")
	// ErrMalformedResponse is returned when the model reply is not an evidence document.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// Extractor implements ports.Extractor backed by OpenAI-compatible chat APIs.
type Extractor struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float64
	httpClient   *http.Client
}

var _ ports.Extractor = (*Extractor)(nil)

// NewExtractor builds a client from configuration.
func NewExtractor(cfg config.ExtractionConfig) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Extractor{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Extract sends the transcript as a user message and decodes the JSON reply
// into an evidence record. Token usage is returned even when the reply is
// malformed.
func (c *Extractor) Extract(ctx context.Context, transcript string) (domain.Extraction, error) {
	if c == nil {
		return domain.Extraction{}, fmt.Errorf("extractor is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.Extraction{}, ErrMisconfigured
	}

	var resp chatResponse
	err := c.post(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: transcript},
		},
		Temperature:    c.temperature,
		ResponseFormat: map[string]any{"type": "json_object"},
	}, &resp)
	if err != nil {
		return domain.Extraction{}, err
	}

	out := domain.Extraction{Usage: domain.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}}

	if len(resp.Choices) == 0 {
		return out, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if content == "" {
		return out, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(content), &out.Evidence); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return out, nil
}

func (c *Extractor) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("extraction error %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}
	return nil
}

// stripFences removes a Markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultPrompt
	}
	return prompt
}

const defaultPrompt = `You analyze a sales call transcript and return only a JSON object with this shape:
{
  "dynamics": {"agentTalkRatio": number 0..1, "firstValueTimeSeconds": number|null,
               "firstCtaTimeSeconds": number|null, "deadAirEvents": [{"startTime": number, "duration": number}]},
  "objections": {"resistanceFound": bool, "acknowledgment": {"responseTimeSeconds": number}|null,
                 "compliance": {"complyTimeSeconds": number}|null, "alternativeOffered": bool},
  "brand": {"firstBrandMentionTimeSeconds": number|null, "brandVariantCount": integer,
            "language": {"clientLanguage": string, "agentLanguage": string, "agentSwitched": bool,
                         "switchTimeSeconds": number|null}},
  "outcome": {"finalOutcome": "MEETING_BOOKED"|"WARM_LEAD"|"CALLBACK_SET"|"INFO_SENT"|"NO_OUTCOME",
              "wrapUpPresent": bool,
              "toolUsage": {"toolsUsed": bool, "duplicateWaits": integer, "apologyCount": integer,
                            "postToolLatenciesSeconds": [number]}},
  "metadata": {"totalDurationSeconds": number}
}
Times are seconds from the start of the call. Use null for events that never happened.`
