// Package eval publishes the two-layer latest evaluation and drives the
// shared webhook/scheduler evaluation pipeline: aggregate → rules →
// publish fast, then market → single-flight AI → publish slow.
package eval

import (
	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/signal"
)

// maxAILines caps the slow layer at six trimmed lines.
const maxAILines = 6

// LatestRules is the fast publication layer, refreshed on every
// evaluation.
type LatestRules struct {
	Decision         string                    `json:"decision"`
	Bias             string                    `json:"bias"`
	Confidence       int                       `json:"confidence"`
	Score            float64                   `json:"score"`
	Reasons          []string                  `json:"reasons"`
	SignalsUsed      []signal.IndicatorSignal  `json:"signals_used"`
	AggregatedCounts map[string]map[string]int `json:"aggregated_counts"`
}

// LatestAI is the slow publication layer. When an evaluation carries no
// new AI text the previous layer is carried forward verbatim.
type LatestAI struct {
	Lines       []string `json:"lines"`
	GeneratedAt int64    `json:"generated_at"`
}

// LatestEvaluation is the published envelope for a symbol.
type LatestEvaluation struct {
	EvaluationID  string                    `json:"evaluation_id"`
	Symbol        string                    `json:"symbol"`
	LatestRules   LatestRules               `json:"latest_rules"`
	LatestAI      *LatestAI                 `json:"latest_ai,omitempty"`
	MarketSummary map[string]market.Summary `json:"market_summary,omitempty"`
	EvaluatedAt   int64                     `json:"evaluated_at"`
}

// BuildLatestRules flattens a rules evaluation and its aggregation into
// the fast layer.
func BuildLatestRules(rules *signal.RulesOutput, agg *signal.AggregationResult) LatestRules {
	var signalsUsed []signal.IndicatorSignal
	counts := make(map[string]map[string]int, len(agg.Timeframes))

	for _, tf := range agg.Order() {
		summary := agg.Timeframes[tf]
		signalsUsed = append(signalsUsed, summary.Indicators...)
		counts[tf] = map[string]int{
			"buy":     summary.BuyCount,
			"sell":    summary.SellCount,
			"close":   summary.CloseCount,
			"neutral": summary.NeutralCount,
		}
	}

	return LatestRules{
		Decision:         rules.Decision,
		Bias:             rules.Bias,
		Confidence:       rules.Confidence,
		Score:            rules.Score,
		Reasons:          rules.Reasons,
		SignalsUsed:      signalsUsed,
		AggregatedCounts: counts,
	}
}
