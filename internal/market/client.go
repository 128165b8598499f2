// Package market fetches Binance USDT-M futures candlesticks, collapses
// them into per-timeframe summaries and keeps a live last-price map fed by
// the mini-ticker stream.
package market

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// fetchTimeout bounds a full summaries fan-out.
	fetchTimeout = 10 * time.Second
	// cacheTTL keeps repeated evaluations of the same symbol from
	// hammering the klines endpoint.
	cacheTTL = 10 * time.Second
	// klineLimit is how many candles are requested per interval; the
	// summary itself only looks at the last 20.
	klineLimit = 200
)

// summaryIntervals are the timeframes a market summary covers.
var summaryIntervals = []string{"15m", "1h", "4h"}

// Summary describes recent price action on one interval: closing price,
// candle colors and the close-to-close slope over the last 20 candles.
type Summary struct {
	TF           string  `json:"tf"`
	LastPrice    float64 `json:"last_price"`
	GreenCandles int     `json:"green_candles"`
	RedCandles   int     `json:"red_candles"`
	Slope        float64 `json:"slope"`
}

type cacheEntry struct {
	at     time.Time
	klines []*futures.Kline
}

// Client fetches klines with an in-memory cache, a circuit breaker and a
// client-side rate limiter in front of the Binance API.
type Client struct {
	futures *futures.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClient creates an unauthenticated futures market-data client. Kline
// reads are public endpoints, so no API keys are needed.
func NewClient() *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-klines",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
		},
	})

	return &Client{
		futures: futures.NewClient("", ""),
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		cache:   make(map[string]cacheEntry),
	}
}

// fetchKlines returns candles for symbol/interval, serving from the cache
// when fresh.
func (c *Client) fetchKlines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	cacheKey := symbol + ":" + interval + ":" + strconv.Itoa(limit)

	c.mu.Lock()
	if entry, ok := c.cache[cacheKey]; ok && time.Since(entry.at) < cacheTTL {
		c.mu.Unlock()
		return entry.klines, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.futures.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, err
	}
	klines := result.([]*futures.Kline)

	c.mu.Lock()
	c.cache[cacheKey] = cacheEntry{at: time.Now(), klines: klines}
	c.mu.Unlock()

	return klines, nil
}

// Summarize collapses klines into a Summary over the last 20 candles.
// Empty input yields a zero-valued summary.
func Summarize(klines []*futures.Kline, interval string) Summary {
	if len(klines) == 0 {
		return Summary{TF: interval}
	}

	last20 := klines
	if len(klines) > 20 {
		last20 = klines[len(klines)-20:]
	}
	lastPrice := parsePrice(klines[len(klines)-1].Close)

	green := 0
	for _, k := range last20 {
		if parsePrice(k.Close) >= parsePrice(k.Open) {
			green++
		}
	}
	red := len(last20) - green

	slope := parsePrice(last20[len(last20)-1].Close) - parsePrice(last20[0].Close)

	return Summary{
		TF:           interval,
		LastPrice:    lastPrice,
		GreenCandles: green,
		RedCandles:   red,
		Slope:        math.Round(slope*10000) / 10000,
	}
}

// Summaries fetches and summarizes the 15m, 1h and 4h intervals in
// parallel. A failed interval degrades to a zero-valued summary; the map
// always carries all three keys.
func (c *Client) Summaries(ctx context.Context, symbol string) map[string]Summary {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	results := make([]Summary, len(summaryIntervals))
	g, gctx := errgroup.WithContext(ctx)
	for i, interval := range summaryIntervals {
		g.Go(func() error {
			klines, err := c.fetchKlines(gctx, symbol, interval, klineLimit)
			if err != nil {
				log.Error().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("klines_fetch_error")
				results[i] = Summary{TF: interval}
				return nil
			}
			results[i] = Summarize(klines, interval)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Summary, len(summaryIntervals))
	for i, interval := range summaryIntervals {
		out[interval] = results[i]
	}
	return out
}

// LastPrice returns the most recent 15m close for symbol, 0 when unknown.
func (c *Client) LastPrice(ctx context.Context, symbol string) float64 {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	klines, err := c.fetchKlines(ctx, symbol, "15m", 1)
	if err != nil || len(klines) == 0 {
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("last_price_fetch_error")
		}
		return 0
	}
	return parsePrice(klines[len(klines)-1].Close)
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
