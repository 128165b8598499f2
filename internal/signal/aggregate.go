package signal

import (
	"encoding/json"
	"strings"
	"time"
)

// Aggregate collapses the raw per-symbol event log tail into per-timeframe
// summaries. raws is the JSON tail of tv:events:{symbol} as stored; entries
// that fail to decode are skipped silently. For every configured timeframe
// the events inside its window are counted per signal and the most recent
// signal per indicator is kept (ties broken towards the later log entry).
func Aggregate(symbol string, raws []string, cfg *RuntimeConfig, now time.Time) *AggregationResult {
	nowSec := now.Unix()

	events := make([]NormalizedEvent, 0, len(raws))
	for _, raw := range raws {
		var ev NormalizedEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}

	order := cfg.WindowOrder()
	summaries := make(map[string]*TimeframeSummary, len(order))
	var used []NormalizedEvent

	for _, tf := range order {
		cutoff := nowSec - cfg.TFWindows[tf]
		summary := &TimeframeSummary{TF: tf}

		// Latest event per indicator, preserving first-seen order.
		latest := make(map[string]*NormalizedEvent)
		var indOrder []string

		for i := range events {
			ev := &events[i]
			if ev.TF != tf || ev.TS < cutoff {
				continue
			}

			switch Signal(strings.ToUpper(string(ev.Signal))) {
			case SignalBuy:
				summary.BuyCount++
			case SignalSell:
				summary.SellCount++
			case SignalClose:
				summary.CloseCount++
			default:
				summary.NeutralCount++
			}

			name := ev.Indicator
			if name == "" {
				name = "unknown"
			}
			prev, ok := latest[name]
			if !ok {
				indOrder = append(indOrder, name)
			}
			if !ok || ev.TS >= prev.TS {
				latest[name] = ev
			}

			used = append(used, *ev)
		}

		for _, name := range indOrder {
			ev := latest[name]
			summary.Indicators = append(summary.Indicators, IndicatorSignal{
				Indicator: name,
				Signal:    string(ev.Signal),
				Strength:  ev.Strength,
				TS:        ev.TS,
			})
		}

		summaries[tf] = summary
	}

	return &AggregationResult{
		Symbol:       symbol,
		Timeframes:   summaries,
		UsedEvents:   used,
		AggregatedAt: nowSec,
		TFOrder:      order,
	}
}
