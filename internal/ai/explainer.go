// Package ai produces the short natural-language explanation layer on top
// of a rules evaluation. Providers never fail upward: any error degrades
// to the deterministic template so an explanation is always available.
package ai

import (
	"context"

	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/signal"
)

// Explainer turns a rules evaluation plus market context into a short
// human-readable summary (up to six lines).
type Explainer interface {
	Explain(ctx context.Context, rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) string
}

// NewExplainer selects the provider at startup. Anything but a configured
// "openai" provider yields the template-only Dummy.
func NewExplainer(provider, apiKey, model, baseURL string) Explainer {
	if provider == "openai" && apiKey != "" {
		return NewOpenAI(apiKey, model, baseURL)
	}
	return Dummy{}
}

// Dummy renders the deterministic fallback template without any external
// call.
type Dummy struct{}

func (Dummy) Explain(_ context.Context, rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) string {
	return fallbackExplanation(rules, agg, summaries)
}

var _ Explainer = Dummy{}
var _ Explainer = (*OpenAI)(nil)
