package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/signal"
)

// callTimeout hard-bounds a provider call.
const callTimeout = 15 * time.Second

// OpenAI calls an OpenAI-compatible chat completions endpoint. Any
// failure, including a slow provider, degrades to the fallback template.
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates a provider against baseURL (e.g.
// "https://api.openai.com/v1").
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	return &OpenAI{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: callTimeout},
	}
}

func (o *OpenAI) Explain(ctx context.Context, rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) string {
	text, err := o.complete(ctx, buildPrompt(rules, agg, summaries))
	if err != nil {
		log.Error().Err(err).Str("symbol", rules.Symbol).Msg("ai_call_failed")
		return fallbackExplanation(rules, agg, summaries)
	}
	return text
}

func (o *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
