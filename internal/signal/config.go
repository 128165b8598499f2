package signal

import (
	"fmt"
	"sort"
)

// canonicalTFs orders the closed timeframe set from fastest to slowest.
var canonicalTFs = []string{"5m", "15m", "1h", "4h"}

// RuntimeConfig holds the runtime-adjustable parameters, persisted in
// Redis under tv:config and replaceable atomically via the admin surface.
type RuntimeConfig struct {
	// Symbols refreshed on schedule even without new alerts.
	WatchlistSymbols []string `json:"watchlist_symbols"`
	// Cadence of rules refresh and AI refresh, in seconds.
	RefreshRulesSeconds int `json:"refresh_rules_seconds"`
	RefreshAISeconds    int `json:"refresh_ai_seconds"`
	// Maximum events kept per symbol (trim-to-tail).
	EventsMaxPerSymbol int `json:"events_max_per_symbol"`
	// Aggregation window per timeframe, in seconds.
	TFWindows map[string]int64 `json:"tf_windows"`
	// Scoring weights. An unlisted timeframe weighs 0.0 (closed set); an
	// unlisted indicator weighs 1.0 (open set). The asymmetry is intentional.
	TFWeights        map[string]float64 `json:"tf_weights"`
	IndicatorWeights map[string]float64 `json:"indicator_weights"`
	// Score threshold for bias determination. Must be > 0.
	Threshold float64 `json:"threshold"`
}

// DefaultRuntimeConfig returns the embedded defaults used until an admin
// replaces the persisted config.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		WatchlistSymbols:    []string{"ETHUSDT", "BTCUSDT"},
		RefreshRulesSeconds: 30,
		RefreshAISeconds:    120,
		EventsMaxPerSymbol:  1000,
		TFWindows:           map[string]int64{"5m": 180, "15m": 300, "1h": 900, "4h": 1800},
		TFWeights:           map[string]float64{"4h": 0.45, "1h": 0.25, "15m": 0.18, "5m": 0.12},
		IndicatorWeights:    map[string]float64{"AdaptiveTrendFlow": 1.0},
		Threshold:           0.25,
	}
}

// Validate rejects configurations the engine cannot run on. A zero
// threshold would divide the confidence formula by zero.
func (c *RuntimeConfig) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be > 0, got %v", c.Threshold)
	}
	if c.RefreshRulesSeconds <= 0 {
		return fmt.Errorf("refresh_rules_seconds must be > 0, got %d", c.RefreshRulesSeconds)
	}
	if c.RefreshAISeconds <= 0 {
		return fmt.Errorf("refresh_ai_seconds must be > 0, got %d", c.RefreshAISeconds)
	}
	if c.EventsMaxPerSymbol <= 0 {
		return fmt.Errorf("events_max_per_symbol must be > 0, got %d", c.EventsMaxPerSymbol)
	}
	if len(c.TFWindows) == 0 {
		return fmt.Errorf("tf_windows must not be empty")
	}
	return nil
}

// WindowOrder returns the configured timeframes in canonical order
// (fastest first), with any non-canonical keys appended sorted. Aggregation
// and rules iterate in this order so evaluation output is deterministic.
func (c *RuntimeConfig) WindowOrder() []string {
	order := make([]string, 0, len(c.TFWindows))
	seen := make(map[string]bool, len(c.TFWindows))
	for _, tf := range canonicalTFs {
		if _, ok := c.TFWindows[tf]; ok {
			order = append(order, tf)
			seen[tf] = true
		}
	}
	var extra []string
	for tf := range c.TFWindows {
		if !seen[tf] {
			extra = append(extra, tf)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}
