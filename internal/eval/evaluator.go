package eval

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/metrics"
	"github.com/mertkaradayi/tvintel/internal/signal"
	"github.com/mertkaradayi/tvintel/internal/store"
)

// MarketData is what the evaluator needs from the market-data fetcher.
// Both calls degrade to zero values on upstream failure.
type MarketData interface {
	Summaries(ctx context.Context, symbol string) map[string]market.Summary
	LastPrice(ctx context.Context, symbol string) float64
}

// Explainer matches ai.Explainer without importing it; keeps the
// evaluator mockable from tests.
type Explainer interface {
	Explain(ctx context.Context, rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) string
}

// Evaluator runs the evaluation pipeline shared by the webhook ingress
// and the refresh scheduler.
type Evaluator struct {
	Store     *store.Store
	Market    MarketData
	Explainer Explainer
}

// EvaluateRules aggregates the symbol's recent events and runs the rules
// engine. Pure apart from the single log read.
func (e *Evaluator) EvaluateRules(ctx context.Context, symbol string, cfg *signal.RuntimeConfig) (*signal.RulesOutput, *signal.AggregationResult, error) {
	raws, err := e.Store.RecentEvents(ctx, symbol, cfg.EventsMaxPerSymbol)
	if err != nil {
		return nil, nil, err
	}
	agg := signal.Aggregate(symbol, raws, cfg, time.Now())
	return signal.Evaluate(agg, cfg), agg, nil
}

// StoreLatest publishes the two-layer envelope for a symbol.
//
// The previous envelope is read once and serves two purposes: the AI
// carry-forward (aiText == "" keeps the previous slow layer verbatim, a
// corrupt previous envelope counts as absent) and the monotonicity gate
// (a previous evaluated_at beyond now means a newer writer already won,
// so this write is dropped). summaries may be nil on the fast-only path.
func (e *Evaluator) StoreLatest(ctx context.Context, symbol string, rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary, aiText string) error {
	now := time.Now().Unix()

	var latestAI *LatestAI
	if aiText != "" {
		var lines []string
		for _, line := range strings.Split(strings.TrimSpace(aiText), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
			if len(lines) == maxAILines {
				break
			}
		}
		latestAI = &LatestAI{Lines: lines, GeneratedAt: now}
	}

	var prev *LatestEvaluation
	if prevRaw, err := e.Store.GetLatest(ctx, symbol); err == nil && prevRaw != "" {
		var decoded LatestEvaluation
		if err := json.Unmarshal([]byte(prevRaw), &decoded); err == nil {
			prev = &decoded
		}
	}

	if latestAI == nil && prev != nil {
		latestAI = prev.LatestAI
	}

	if prev != nil && prev.EvaluatedAt > now {
		log.Debug().Str("symbol", symbol).Int64("prev", prev.EvaluatedAt).Int64("now", now).Msg("stale_latest_write_dropped")
		return nil
	}

	envelope := LatestEvaluation{
		EvaluationID:  strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		Symbol:        symbol,
		LatestRules:   BuildLatestRules(rules, agg),
		LatestAI:      latestAI,
		MarketSummary: summaries,
		EvaluatedAt:   now,
	}

	data, err := json.Marshal(&envelope)
	if err != nil {
		return err
	}
	return e.Store.SetLatest(ctx, symbol, data)
}

// ExplainLocked runs the AI explanation under the fleet-wide per-symbol
// single-flight lock. Returns "" when the lock is busy (another replica
// is already explaining this symbol).
func (e *Evaluator) ExplainLocked(ctx context.Context, symbol string, rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) (string, error) {
	token, err := e.Store.AcquireAILock(ctx, symbol)
	if err != nil {
		return "", err
	}
	if token == "" {
		metrics.AICalls.WithLabelValues("lock_busy").Inc()
		return "", nil
	}
	defer func() {
		if err := e.Store.ReleaseAILock(ctx, symbol, token); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("ai_lock_release_failed")
		}
	}()

	text := e.Explainer.Explain(ctx, rules, agg, summaries)
	metrics.AICalls.WithLabelValues("generated").Inc()
	return text, nil
}

// RunBackground is the asynchronous leg dispatched after a webhook
// admission: fetch market summaries, attempt the AI explanation under the
// single-flight lock and publish the slow layer. Failures are logged,
// never surfaced — the HTTP response is long gone.
func (e *Evaluator) RunBackground(ctx context.Context, symbol string, rules *signal.RulesOutput, agg *signal.AggregationResult) {
	summaries := e.Market.Summaries(ctx, symbol)

	aiText, err := e.ExplainLocked(ctx, symbol, rules, agg, summaries)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("background_evaluation_error")
		return
	}
	if aiText == "" {
		log.Info().Str("symbol", symbol).Msg("ai_lock_busy_skipping")
	}

	if err := e.StoreLatest(ctx, symbol, rules, agg, summaries, aiText); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("background_evaluation_error")
		return
	}
	log.Info().Str("symbol", symbol).Str("decision", rules.Decision).Msg("evaluation_stored")
}
