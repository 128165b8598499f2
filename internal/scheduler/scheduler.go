// Package scheduler keeps watchlist evaluations fresh when no webhooks
// arrive: rules at the fast cadence, AI every N ticks.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/eval"
	"github.com/mertkaradayi/tvintel/internal/metrics"
	"github.com/mertkaradayi/tvintel/internal/signal"
	"github.com/mertkaradayi/tvintel/internal/store"
)

// minInterval floors the refresh cadence regardless of config.
const minInterval = 5

// Scheduler is the single long-running refresh task.
type Scheduler struct {
	store     *store.Store
	evaluator *eval.Evaluator
	logger    zerolog.Logger

	// ticks since the last AI refresh, per symbol
	counters map[string]int

	cancel context.CancelFunc
	done   chan struct{}
}

func New(st *store.Store, evaluator *eval.Evaluator) *Scheduler {
	return &Scheduler{
		store:     st,
		evaluator: evaluator,
		logger:    log.With().Str("component", "scheduler").Logger(),
		counters:  make(map[string]int),
	}
}

// Start launches the refresh loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop cancels the loop and waits for the current iteration to drain.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	s.logger.Info().Msg("scheduler_started")

	for {
		cfg := s.store.LoadRuntimeConfig(ctx)

		interval := cfg.RefreshRulesSeconds
		if interval < minInterval {
			interval = minInterval
		}
		aiEvery := cfg.RefreshAISeconds / interval
		if aiEvery < 1 {
			aiEvery = 1
		}

		for _, symbol := range cfg.WatchlistSymbols {
			if ctx.Err() != nil {
				s.logger.Info().Msg("scheduler_stopped")
				return
			}

			count := s.counters[symbol] + 1
			forceAI := count >= aiEvery
			if forceAI {
				// Reset even when the AI lock turns out busy below, so
				// cadence does not starve behind webhook-driven AI runs.
				count = 0
			}
			s.counters[symbol] = count

			s.tick(ctx, symbol, cfg, forceAI)
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler_stopped")
			return
		case <-time.After(time.Duration(interval) * time.Second):
		}
	}
}

// tick refreshes one symbol: aggregate → rules → market → optional AI →
// publish. Errors are logged and retried implicitly on the next
// iteration.
func (s *Scheduler) tick(ctx context.Context, symbol string, cfg *signal.RuntimeConfig, forceAI bool) {
	rules, agg, err := s.evaluator.EvaluateRules(ctx, symbol, cfg)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("scheduler_tick_error")
		return
	}

	summaries := s.evaluator.Market.Summaries(ctx, symbol)

	aiText := ""
	if forceAI {
		aiText, err = s.evaluator.ExplainLocked(ctx, symbol, rules, agg, summaries)
		if err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("scheduler_tick_error")
			return
		}
		if aiText == "" {
			s.logger.Debug().Str("symbol", symbol).Msg("scheduler_ai_lock_busy")
		}
	}

	if err := s.evaluator.StoreLatest(ctx, symbol, rules, agg, summaries, aiText); err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("scheduler_tick_error")
		return
	}

	metrics.Evaluations.WithLabelValues("scheduler").Inc()
	s.logger.Debug().Str("symbol", symbol).Str("decision", rules.Decision).Bool("ai", forceAI).Msg("scheduler_tick")
}
