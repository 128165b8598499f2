package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/signal"
)

func testEvaluation() (*signal.RulesOutput, *signal.AggregationResult, map[string]market.Summary) {
	cfg := signal.DefaultRuntimeConfig()
	agg := signal.Aggregate("ETHUSDT", nil, cfg, time.Unix(1700000000, 0))
	agg.Timeframes["1h"].BuyCount = 1
	agg.Timeframes["1h"].Indicators = []signal.IndicatorSignal{
		{Indicator: "ATF", Signal: "BUY", Strength: 1.0, TS: 1699999700},
	}
	rules := signal.Evaluate(agg, cfg)

	summaries := map[string]market.Summary{
		"4h":  {TF: "4h", LastPrice: 2450, Slope: 12.5, GreenCandles: 12, RedCandles: 8},
		"1h":  {TF: "1h", LastPrice: 2450, Slope: -3.25, GreenCandles: 9, RedCandles: 11},
		"15m": {TF: "15m", LastPrice: 2450, Slope: 1.0, GreenCandles: 10, RedCandles: 10},
	}
	return rules, agg, summaries
}

func TestNewExplainerSelection(t *testing.T) {
	assert.IsType(t, Dummy{}, NewExplainer("dummy", "", "m", "http://x"))
	assert.IsType(t, Dummy{}, NewExplainer("openai", "", "m", "http://x"))
	assert.IsType(t, &OpenAI{}, NewExplainer("openai", "key", "m", "http://x"))
}

func TestDummyExplainTemplate(t *testing.T) {
	rules, agg, summaries := testEvaluation()

	text := Dummy{}.Explain(context.Background(), rules, agg, summaries)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 6)

	assert.True(t, strings.HasPrefix(lines[0], "1) Genel Durum: LONG_SETUP (50/100)"))
	assert.Equal(t, "2) Trend: 4H yukari (slope=+12.50) | 1H asagi (slope=-3.25)", lines[1])
	assert.Equal(t, "3) Sinyal Ozeti: ATF@1h=BUY", lines[2])
	assert.Contains(t, lines[3], "LONG")
	assert.Contains(t, lines[5], "Skor=0.250, esik=0.25")
}

func TestDummyExplainDeterministic(t *testing.T) {
	rules, agg, summaries := testEvaluation()
	a := Dummy{}.Explain(context.Background(), rules, agg, summaries)
	b := Dummy{}.Explain(context.Background(), rules, agg, summaries)
	assert.Equal(t, a, b)
}

func TestDummyExplainEmptyAggregation(t *testing.T) {
	cfg := signal.DefaultRuntimeConfig()
	agg := signal.Aggregate("ETHUSDT", nil, cfg, time.Unix(1700000000, 0))
	rules := signal.Evaluate(agg, cfg)

	text := Dummy{}.Explain(context.Background(), rules, agg, nil)
	assert.Contains(t, text, "3) Sinyal Ozeti: sinyal yok")
}

func TestDummyExplainVetoShown(t *testing.T) {
	cfg := signal.DefaultRuntimeConfig()
	agg := signal.Aggregate("ETHUSDT", nil, cfg, time.Unix(1700000000, 0))
	agg.Timeframes["1h"].Indicators = []signal.IndicatorSignal{
		{Indicator: "ATF", Signal: "BUY", Strength: 1.0, TS: 1699999700},
	}
	agg.Timeframes["4h"].SellCount = 1
	rules := signal.Evaluate(agg, cfg)
	require.True(t, rules.VetoApplied)

	text := Dummy{}.Explain(context.Background(), rules, agg, nil)
	assert.Contains(t, text, "Veto: 4H net SELL")
}

func TestOpenAIExplain(t *testing.T) {
	rules, agg, summaries := testEvaluation()

	t.Run("returns provider text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			require.Len(t, req.Messages, 1)
			assert.Contains(t, req.Messages[0].Content, "ETHUSDT")

			json.NewEncoder(w).Encode(chatResponse{
				Choices: []struct {
					Message chatMessage `json:"message"`
				}{{Message: chatMessage{Role: "assistant", Content: "  analysis text \n"}}},
			})
		}))
		defer srv.Close()

		o := NewOpenAI("test-key", "test-model", srv.URL)
		assert.Equal(t, "analysis text", o.Explain(context.Background(), rules, agg, summaries))
	})

	t.Run("provider error falls back to template", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		o := NewOpenAI("test-key", "test-model", srv.URL)
		text := o.Explain(context.Background(), rules, agg, summaries)
		assert.Contains(t, text, "1) Genel Durum:")
		assert.Len(t, strings.Split(text, "\n"), 6)
	})

	t.Run("empty choices falls back to template", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		o := NewOpenAI("test-key", "test-model", srv.URL)
		assert.Contains(t, o.Explain(context.Background(), rules, agg, summaries), "1) Genel Durum:")
	})

	t.Run("unreachable provider falls back to template", func(t *testing.T) {
		o := NewOpenAI("test-key", "test-model", "http://127.0.0.1:1")
		assert.Contains(t, o.Explain(context.Background(), rules, agg, summaries), "1) Genel Durum:")
	})
}
