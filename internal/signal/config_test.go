package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuntimeConfig(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.WatchlistSymbols)
	assert.Equal(t, 0.25, cfg.Threshold)
	assert.Equal(t, 1000, cfg.EventsMaxPerSymbol)
}

func TestRuntimeConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RuntimeConfig)
	}{
		{"zero threshold", func(c *RuntimeConfig) { c.Threshold = 0 }},
		{"negative threshold", func(c *RuntimeConfig) { c.Threshold = -0.1 }},
		{"zero rules cadence", func(c *RuntimeConfig) { c.RefreshRulesSeconds = 0 }},
		{"zero ai cadence", func(c *RuntimeConfig) { c.RefreshAISeconds = 0 }},
		{"zero events cap", func(c *RuntimeConfig) { c.EventsMaxPerSymbol = 0 }},
		{"empty windows", func(c *RuntimeConfig) { c.TFWindows = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRuntimeConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWindowOrder(t *testing.T) {
	t.Run("canonical order fastest first", func(t *testing.T) {
		cfg := DefaultRuntimeConfig()
		assert.Equal(t, []string{"5m", "15m", "1h", "4h"}, cfg.WindowOrder())
	})

	t.Run("extras appended sorted", func(t *testing.T) {
		cfg := DefaultRuntimeConfig()
		cfg.TFWindows["2h"] = 1200
		cfg.TFWindows["1d"] = 7200
		assert.Equal(t, []string{"5m", "15m", "1h", "4h", "1d", "2h"}, cfg.WindowOrder())
	})

	t.Run("subset keeps canonical order", func(t *testing.T) {
		cfg := DefaultRuntimeConfig()
		cfg.TFWindows = map[string]int64{"4h": 1800, "5m": 180}
		assert.Equal(t, []string{"5m", "4h"}, cfg.WindowOrder())
	})
}
