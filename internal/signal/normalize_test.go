package signal

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTF(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"5", "5m"},
		{"5m", "5m"},
		{"15", "15m"},
		{"15m", "15m"},
		{"60", "1h"},
		{"1h", "1h"},
		{"1H", "1h"},
		{"240", "4h"},
		{"4h", "4h"},
		{"4H", "4h"},
		{" 60 ", "1h"},
		{"3h", ""},
		{"daily", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTF(tt.raw))
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ETHUSDT", "ETHUSDT"},
		{"ethusdt", "ETHUSDT"},
		{"BINANCE:ETHUSDT", "ETHUSDT"},
		{"ETHUSDT.P", "ETHUSDT"},
		{"BINANCE:ETHUSDT.P", "ETHUSDT"},
		{" BYBIT:BTCUSDT.PS ", "BTCUSDT"},
		{"BINANCE:", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSymbol(tt.raw))
		})
	}

	// Idempotent: normalizing a normalized symbol is a no-op.
	assert.Equal(t, "ETHUSDT", NormalizeSymbol(NormalizeSymbol("BINANCE:ETHUSDT.P")))
}

func validPayload() *RawPayload {
	return &RawPayload{
		Secret:    "s3cret",
		Indicator: "AdaptiveTrendFlow",
		Symbol:    "BINANCE:ETHUSDT.P",
		TF:        "60",
		Signal:    "BUY",
		Strength:  json.RawMessage(`"0.8"`),
		Price:     json.RawMessage(`"2450.5"`),
		TS:        json.RawMessage(`"1700000000"`),
	}
}

func TestNormalizeAccepts(t *testing.T) {
	ev, err := Normalize(validPayload(), 0)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", ev.Symbol)
	assert.Equal(t, "1h", ev.TF)
	assert.Equal(t, SignalBuy, ev.Signal)
	assert.Equal(t, "AdaptiveTrendFlow", ev.Indicator)
	assert.Equal(t, int64(1700000000), ev.TS)
	assert.Equal(t, 2450.5, ev.Price)
	assert.Equal(t, 0.8, ev.Strength)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), ev.EventID)
}

func TestNormalizeSignalAliases(t *testing.T) {
	tests := []struct {
		raw  string
		want Signal
	}{
		{"BUY", SignalBuy},
		{"buy", SignalBuy},
		{"LONG", SignalBuy},
		{"SELL", SignalSell},
		{"short", SignalSell},
		{" Sell ", SignalSell},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := validPayload()
			p.Signal = tt.raw
			ev, err := Normalize(p, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Signal)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawPayload)
		detail string
	}{
		{
			name:   "unknown signal",
			mutate: func(p *RawPayload) { p.Signal = "HOLD" },
			detail: "Invalid signal: 'HOLD'. Expected BUY or SELL.",
		},
		{
			name:   "close not accepted on ingress",
			mutate: func(p *RawPayload) { p.Signal = "CLOSE" },
			detail: "Invalid signal: 'CLOSE'. Expected BUY or SELL.",
		},
		{
			name:   "invalid timeframe",
			mutate: func(p *RawPayload) { p.TF = "3h" },
			detail: "Invalid timeframe: '3h'",
		},
		{
			name:   "empty symbol after normalization",
			mutate: func(p *RawPayload) { p.Symbol = "BINANCE:" },
			detail: "Empty symbol after normalization",
		},
		{
			name:   "unparseable ts",
			mutate: func(p *RawPayload) { p.TS = json.RawMessage(`"soon"`) },
			detail: "Cannot parse ts as integer: 'soon'",
		},
		{
			name:   "unparseable price",
			mutate: func(p *RawPayload) { p.Price = json.RawMessage(`"cheap"`) },
			detail: "Cannot parse price as number: 'cheap'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(p)
			_, err := Normalize(p, 0)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.detail, verr.Detail)
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	t.Run("missing strength defaults to 0.5", func(t *testing.T) {
		p := validPayload()
		p.Strength = nil
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.Equal(t, 0.5, ev.Strength)
	})

	t.Run("unparseable strength defaults to 0.5", func(t *testing.T) {
		p := validPayload()
		p.Strength = json.RawMessage(`"strong"`)
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.Equal(t, 0.5, ev.Strength)
	})

	t.Run("strength clamped to [0,1]", func(t *testing.T) {
		p := validPayload()
		p.Strength = json.RawMessage(`"3.7"`)
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.Equal(t, 1.0, ev.Strength)

		p.Strength = json.RawMessage(`"-2"`)
		ev, err = Normalize(p, 0)
		require.NoError(t, err)
		assert.Equal(t, 0.0, ev.Strength)
	})

	t.Run("missing ts uses receive time", func(t *testing.T) {
		p := validPayload()
		p.TS = nil
		before := time.Now().Unix()
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ev.TS, before)
	})

	t.Run("zero ts uses receive time", func(t *testing.T) {
		p := validPayload()
		p.TS = json.RawMessage(`0`)
		before := time.Now().Unix()
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ev.TS, before)
	})

	t.Run("iso ts parsed as utc", func(t *testing.T) {
		p := validPayload()
		p.TS = json.RawMessage(`"2024-01-15T12:30:00Z"`)
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC).Unix(), ev.TS)
	})

	t.Run("numeric json ts accepted", func(t *testing.T) {
		p := validPayload()
		p.TS = json.RawMessage(`1700000123`)
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000123), ev.TS)
	})

	t.Run("missing price falls back", func(t *testing.T) {
		p := validPayload()
		p.Price = nil
		ev, err := Normalize(p, 2500.0)
		require.NoError(t, err)
		assert.Equal(t, 2500.0, ev.Price)
	})

	t.Run("null price falls back", func(t *testing.T) {
		p := validPayload()
		p.Price = json.RawMessage(`null`)
		ev, err := Normalize(p, 2500.0)
		require.NoError(t, err)
		assert.Equal(t, 2500.0, ev.Price)
	})
}

func TestNormalizeEventID(t *testing.T) {
	t.Run("deterministic for identical payloads", func(t *testing.T) {
		a, err := Normalize(validPayload(), 0)
		require.NoError(t, err)
		b, err := Normalize(validPayload(), 0)
		require.NoError(t, err)
		assert.Equal(t, a.EventID, b.EventID)
	})

	t.Run("changes with content", func(t *testing.T) {
		a, err := Normalize(validPayload(), 0)
		require.NoError(t, err)

		p := validPayload()
		p.TS = json.RawMessage(`"1700000001"`)
		b, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.NotEqual(t, a.EventID, b.EventID)
	})

	t.Run("caller-provided id preserved", func(t *testing.T) {
		p := validPayload()
		p.EventID = "custom-42"
		ev, err := Normalize(p, 0)
		require.NoError(t, err)
		assert.Equal(t, "custom-42", ev.EventID)
	})
}
