package scheduler

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mertkaradayi/tvintel/internal/eval"
	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/signal"
	"github.com/mertkaradayi/tvintel/internal/store"
)

type stubMarket struct{}

func (stubMarket) Summaries(ctx context.Context, symbol string) map[string]market.Summary {
	return nil
}

func (stubMarket) LastPrice(ctx context.Context, symbol string) float64 { return 0 }

type countingExplainer struct{ calls atomic.Int64 }

func (e *countingExplainer) Explain(ctx context.Context, rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) string {
	e.calls.Add(1)
	return "generated line"
}

func testScheduler(t *testing.T) (*Scheduler, *store.Store, *countingExplainer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.New(client)
	explainer := &countingExplainer{}
	evaluator := &eval.Evaluator{Store: st, Market: stubMarket{}, Explainer: explainer}
	return New(st, evaluator), st, explainer
}

func TestTickPublishesRulesLayer(t *testing.T) {
	sched, st, explainer := testScheduler(t)
	ctx := context.Background()
	cfg := signal.DefaultRuntimeConfig()

	sched.tick(ctx, "ETHUSDT", cfg, false)

	raw, err := st.GetLatest(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	var env eval.LatestEvaluation
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "ETHUSDT", env.Symbol)
	assert.Nil(t, env.LatestAI, "rules-only tick must not generate AI")
	assert.Equal(t, int64(0), explainer.calls.Load())
}

func TestTickWithAI(t *testing.T) {
	sched, st, explainer := testScheduler(t)
	ctx := context.Background()
	cfg := signal.DefaultRuntimeConfig()

	sched.tick(ctx, "ETHUSDT", cfg, true)

	raw, err := st.GetLatest(ctx, "ETHUSDT")
	require.NoError(t, err)

	var env eval.LatestEvaluation
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	require.NotNil(t, env.LatestAI)
	assert.Equal(t, []string{"generated line"}, env.LatestAI.Lines)
	assert.Equal(t, int64(1), explainer.calls.Load())
}

func TestTickSkipsAIWhenLockBusy(t *testing.T) {
	sched, st, explainer := testScheduler(t)
	ctx := context.Background()
	cfg := signal.DefaultRuntimeConfig()

	token, err := st.AcquireAILock(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sched.tick(ctx, "ETHUSDT", cfg, true)

	assert.Equal(t, int64(0), explainer.calls.Load())

	// The rules layer still went out.
	raw, err := st.GetLatest(ctx, "ETHUSDT")
	require.NoError(t, err)
	var env eval.LatestEvaluation
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Nil(t, env.LatestAI)
}

func TestStartStop(t *testing.T) {
	sched, st, _ := testScheduler(t)
	ctx := context.Background()

	// Fast cadence is floored to the minimum, so the first iteration runs
	// immediately and the loop then sleeps.
	sched.Start(ctx)

	// BTCUSDT is the last watchlist symbol, so once it is published the
	// whole first iteration has completed.
	require.Eventually(t, func() bool {
		raw, err := st.GetLatest(ctx, "BTCUSDT")
		return err == nil && raw != ""
	}, 2*time.Second, 10*time.Millisecond)

	raw, err := st.GetLatest(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.NotEmpty(t, raw, "every watchlist symbol refreshed")

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestAICadenceCounter(t *testing.T) {
	sched, _, explainer := testScheduler(t)
	ctx := context.Background()

	cfg := signal.DefaultRuntimeConfig()
	cfg.RefreshRulesSeconds = 30
	cfg.RefreshAISeconds = 120
	cfg.WatchlistSymbols = []string{"ETHUSDT"}
	interval := cfg.RefreshRulesSeconds
	aiEvery := cfg.RefreshAISeconds / interval // 4

	// Simulate the loop's per-symbol counter for 8 iterations: the AI leg
	// fires on the 4th and 8th.
	for i := 1; i <= 8; i++ {
		count := sched.counters["ETHUSDT"] + 1
		forceAI := count >= aiEvery
		if forceAI {
			count = 0
		}
		sched.counters["ETHUSDT"] = count
		sched.tick(ctx, "ETHUSDT", cfg, forceAI)
	}

	assert.Equal(t, int64(2), explainer.calls.Load())
}
