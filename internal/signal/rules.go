package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// direction maps canonical signals onto score direction. CLOSE and NEUTRAL
// exist internally but contribute nothing.
var direction = map[string]float64{
	"BUY":     1.0,
	"SELL":    -1.0,
	"CLOSE":   0.0,
	"NEUTRAL": 0.0,
}

// Evaluate runs the deterministic rules on an aggregation. Pure: the same
// aggregation and config always produce the same output, including the
// ordering of Reasons.
//
//	score = Σ_tf Σ_i direction(sig) × tf_weight(tf) × indicator_weight(i) × strength(i)
//
// An unlisted timeframe weighs 0.0, an unlisted indicator 1.0. Bias is
// LONG when score ≥ threshold, SHORT when score ≤ −threshold, else
// NEUTRAL. A LONG is vetoed when the 4h window is net SELL (sell count
// exceeds buy count, or the 4h-only score is negative); symmetric for
// SHORT. A veto forces NO_TRADE.
func Evaluate(agg *AggregationResult, cfg *RuntimeConfig) *RulesOutput {
	score := 0.0
	var reasons []string

	for _, tf := range tfOrder(agg) {
		summary := agg.Timeframes[tf]
		tfWeight := cfg.TFWeights[tf]

		for _, ind := range summary.Indicators {
			indWeight := indicatorWeight(cfg, ind.Indicator)
			dir := direction[strings.ToUpper(ind.Signal)]
			contribution := dir * tfWeight * indWeight * ind.Strength
			score += contribution

			if dir != 0.0 {
				reasons = append(reasons, fmt.Sprintf("%s@%s: %s (str=%.1f, contrib=%+.3f)",
					ind.Indicator, tf, ind.Signal, ind.Strength, contribution))
			}
		}
	}

	threshold := cfg.Threshold

	bias := BiasNeutral
	switch {
	case score >= threshold:
		bias = BiasLong
	case score <= -threshold:
		bias = BiasShort
	}

	vetoApplied := false
	vetoReason := ""

	if h4, ok := agg.Timeframes["4h"]; ok {
		h4Weight, listed := cfg.TFWeights["4h"]
		if !listed {
			h4Weight = 0.5
		}
		h4Score := 0.0
		for _, ind := range h4.Indicators {
			h4Score += direction[strings.ToUpper(ind.Signal)] * h4Weight * indicatorWeight(cfg, ind.Indicator) * ind.Strength
		}

		h4NetSell := h4.SellCount > h4.BuyCount || h4Score < 0
		h4NetBuy := h4.BuyCount > h4.SellCount || h4Score > 0

		if bias == BiasLong && h4NetSell {
			vetoApplied = true
			vetoReason = "4H net SELL — LONG_SETUP vetoed"
		} else if bias == BiasShort && h4NetBuy {
			vetoApplied = true
			vetoReason = "4H net BUY — SHORT_SETUP vetoed"
		}
	}

	decision := DecisionWatch
	switch {
	case vetoApplied:
		decision = DecisionNoTrade
	case bias == BiasLong:
		decision = DecisionLongSetup
	case bias == BiasShort:
		decision = DecisionShortSetup
	}

	confidence := int(math.Abs(score) / (threshold * 2) * 100)
	if confidence > 100 {
		confidence = 100
	}

	return &RulesOutput{
		Symbol:      agg.Symbol,
		Decision:    decision,
		Bias:        bias,
		Confidence:  confidence,
		Score:       math.Round(score*10000) / 10000,
		Threshold:   threshold,
		Reasons:     reasons,
		VetoApplied: vetoApplied,
		VetoReason:  vetoReason,
	}
}

func indicatorWeight(cfg *RuntimeConfig, name string) float64 {
	if w, ok := cfg.IndicatorWeights[name]; ok {
		return w
	}
	return 1.0
}

// Order returns the aggregation's deterministic timeframe order.
func (a *AggregationResult) Order() []string { return tfOrder(a) }

// tfOrder returns the aggregation's deterministic timeframe order, falling
// back to canonical-then-sorted for aggregations built by hand.
func tfOrder(agg *AggregationResult) []string {
	if len(agg.TFOrder) > 0 {
		return agg.TFOrder
	}
	order := make([]string, 0, len(agg.Timeframes))
	seen := make(map[string]bool, len(agg.Timeframes))
	for _, tf := range canonicalTFs {
		if _, ok := agg.Timeframes[tf]; ok {
			order = append(order, tf)
			seen[tf] = true
		}
	}
	var extra []string
	for tf := range agg.Timeframes {
		if !seen[tf] {
			extra = append(extra, tf)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}
