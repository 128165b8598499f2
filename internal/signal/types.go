// Package signal holds the canonical event model and the deterministic
// evaluation pipeline: payload normalization, window aggregation and the
// rules engine that turns aggregated indicator signals into a decision.
package signal

import "encoding/json"

// Signal is a canonical signal direction. Only BUY and SELL are accepted
// from the webhook path (LONG/SHORT map onto them); CLOSE and NEUTRAL are
// reserved for internal use and contribute zero direction in scoring.
type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalClose   Signal = "CLOSE"
	SignalNeutral Signal = "NEUTRAL"
)

// Decision is the gated trade recommendation.
const (
	DecisionLongSetup  = "LONG_SETUP"
	DecisionShortSetup = "SHORT_SETUP"
	DecisionWatch      = "WATCH"
	DecisionNoTrade    = "NO_TRADE"
)

// Bias is the direction of aggregate pressure.
const (
	BiasLong    = "LONG"
	BiasShort   = "SHORT"
	BiasNeutral = "NEUTRAL"
)

// RawPayload is a TradingView indicator-alert webhook body as received.
// TradingView sends all template placeholders as strings, so the numeric
// fields are kept as raw JSON and parsed during normalization.
type RawPayload struct {
	Secret    string          `json:"secret"`
	Indicator string          `json:"indicator"`
	Symbol    string          `json:"symbol"`
	TF        string          `json:"tf"`
	Signal    string          `json:"signal"`
	Strength  json.RawMessage `json:"strength,omitempty"`
	Price     json.RawMessage `json:"price,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	TS        json.RawMessage `json:"ts,omitempty"`

	// Raw carries the full decoded body with the secret removed; it is
	// preserved verbatim on the stored event.
	Raw map[string]any `json:"-"`
}

// NormalizedEvent is the canonical internal event representation. It is
// immutable after creation and stored as JSON on the per-symbol event log.
type NormalizedEvent struct {
	EventID    string         `json:"event_id"`
	ReceivedAt int64          `json:"received_at"`
	TS         int64          `json:"ts"`
	Indicator  string         `json:"indicator"`
	Symbol     string         `json:"symbol"`
	TF         string         `json:"tf"`
	Signal     Signal         `json:"signal"`
	Strength   float64        `json:"strength"`
	Price      float64        `json:"price"`
	Raw        map[string]any `json:"raw"`
}

// IndicatorSignal is the most recent signal emitted by one indicator
// within an aggregation window.
type IndicatorSignal struct {
	Indicator string  `json:"indicator"`
	Signal    string  `json:"signal"`
	Strength  float64 `json:"strength"`
	TS        int64   `json:"ts"`
}

// TimeframeSummary collapses a timeframe's window into signal counters and
// the latest signal per indicator.
type TimeframeSummary struct {
	TF           string            `json:"tf"`
	BuyCount     int               `json:"buy_count"`
	SellCount    int               `json:"sell_count"`
	CloseCount   int               `json:"close_count"`
	NeutralCount int               `json:"neutral_count"`
	Indicators   []IndicatorSignal `json:"indicators"`
}

// AggregationResult is the per-symbol aggregation over all configured
// timeframe windows. TFOrder preserves the deterministic timeframe
// iteration order for the rules engine (Go maps do not).
type AggregationResult struct {
	Symbol       string                       `json:"symbol"`
	Timeframes   map[string]*TimeframeSummary `json:"timeframes"`
	UsedEvents   []NormalizedEvent            `json:"used_events"`
	AggregatedAt int64                        `json:"aggregated_at"`

	TFOrder []string `json:"-"`
}

// RulesOutput is the result of one deterministic rules evaluation.
type RulesOutput struct {
	Symbol      string   `json:"symbol"`
	Decision    string   `json:"decision"`
	Bias        string   `json:"bias"`
	Confidence  int      `json:"confidence"`
	Score       float64  `json:"score"`
	Threshold   float64  `json:"threshold"`
	Reasons     []string `json:"reasons"`
	VetoApplied bool     `json:"veto_applied"`
	VetoReason  string   `json:"veto_reason,omitempty"`
}
