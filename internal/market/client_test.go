package market

import (
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
)

func kline(open, close string) *futures.Kline {
	return &futures.Kline{Open: open, Close: close}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, "1h")
	assert.Equal(t, Summary{TF: "1h"}, s)
}

func TestSummarizeCounts(t *testing.T) {
	klines := []*futures.Kline{
		kline("100", "110"), // green
		kline("110", "105"), // red
		kline("105", "105"), // flat counts green
		kline("105", "120"), // green
	}

	s := Summarize(klines, "1h")
	assert.Equal(t, "1h", s.TF)
	assert.Equal(t, 120.0, s.LastPrice)
	assert.Equal(t, 3, s.GreenCandles)
	assert.Equal(t, 1, s.RedCandles)
	assert.Equal(t, 10.0, s.Slope) // 120 − 110
}

func TestSummarizeUsesLast20(t *testing.T) {
	var klines []*futures.Kline
	// 30 red candles then 20 green ones; only the green tail counts.
	for i := 0; i < 30; i++ {
		klines = append(klines, kline("100", "90"))
	}
	for i := 0; i < 20; i++ {
		price := 100 + i
		klines = append(klines, kline(fmt.Sprintf("%d", price), fmt.Sprintf("%d", price+1)))
	}

	s := Summarize(klines, "4h")
	assert.Equal(t, 20, s.GreenCandles)
	assert.Equal(t, 0, s.RedCandles)
	assert.Equal(t, 120.0, s.LastPrice)
	assert.Equal(t, 19.0, s.Slope) // 120 − 101
}

func TestSummarizeUnparseablePrices(t *testing.T) {
	s := Summarize([]*futures.Kline{kline("abc", "def")}, "15m")
	assert.Equal(t, 0.0, s.LastPrice)
	assert.Equal(t, 0.0, s.Slope)
	assert.Equal(t, 1, s.GreenCandles) // 0 >= 0
}

func TestStreamAccessors(t *testing.T) {
	s := NewStream()

	_, ok := s.Price("ETHUSDT")
	assert.False(t, ok)
	assert.Empty(t, s.Snapshot())

	s.update(futures.WsAllMiniMarketTickerEvent{
		{Symbol: "ETHUSDT", ClosePrice: "2450.5"},
		{Symbol: "BTCUSDT", ClosePrice: "65000"},
		{Symbol: "BADUSDT", ClosePrice: "not-a-number"},
		{Symbol: "", ClosePrice: "1"},
	})

	price, ok := s.Price("ETHUSDT")
	assert.True(t, ok)
	assert.Equal(t, 2450.5, price)

	// Lookup normalizes case.
	price, ok = s.Price("ethusdt")
	assert.True(t, ok)
	assert.Equal(t, 2450.5, price)

	snap := s.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, 65000.0, snap["BTCUSDT"])

	// Snapshot is a copy: mutating it does not affect the stream.
	snap["BTCUSDT"] = 0
	price, _ = s.Price("BTCUSDT")
	assert.Equal(t, 65000.0, price)
}
