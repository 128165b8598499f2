package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// signalMap translates wire signal aliases to canonical signals.
// LONG/SHORT come from strategy-style alert templates; EXIT/FLAT are kept
// for manual use even though the strict webhook whitelist rejects them.
var signalMap = map[string]Signal{
	"BUY":     SignalBuy,
	"SELL":    SignalSell,
	"CLOSE":   SignalClose,
	"NEUTRAL": SignalNeutral,
	"LONG":    SignalBuy,
	"SHORT":   SignalSell,
	"EXIT":    SignalClose,
	"FLAT":    SignalNeutral,
}

// strictSignals is the whitelist accepted from TradingView indicator alerts.
var strictSignals = map[string]bool{
	"BUY":   true,
	"SELL":  true,
	"LONG":  true,
	"SHORT": true,
}

// tfMap normalizes TradingView timeframe aliases ("60" → "1h").
var tfMap = map[string]string{
	"5":   "5m",
	"5m":  "5m",
	"15":  "15m",
	"15m": "15m",
	"60":  "1h",
	"1h":  "1h",
	"240": "4h",
	"4h":  "4h",
}

var (
	exchangePrefixRe = regexp.MustCompile(`^[A-Z0-9]+:`) // "BINANCE:" etc.
	contractSuffixRe = regexp.MustCompile(`\.[A-Z]+$`)   // ".P" on perps
)

// tsLayouts are the ISO-ish formats TradingView {{timenow}} can emit.
var tsLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ValidationError carries a 400-level reason back to the ingress handler.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// NormalizeSymbol strips the exchange prefix and contract suffix and
// uppercases: "BINANCE:ETHUSDT.P" → "ETHUSDT". Idempotent.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = exchangePrefixRe.ReplaceAllString(s, "")
	s = contractSuffixRe.ReplaceAllString(s, "")
	return s
}

// NormalizeTF returns the canonical timeframe for a raw alias, or "" when
// the alias is not recognized.
func NormalizeTF(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if tf, ok := tfMap[cleaned]; ok {
		return tf
	}
	if tf, ok := tfMap[strings.ToLower(cleaned)]; ok {
		return tf
	}
	return ""
}

// rawToken returns the bare string form of a raw JSON scalar: quotes are
// stripped from strings, null and absent values become "".
func rawToken(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseTS parses a raw ts token as a unix integer or an ISO datetime in
// UTC. The bool reports whether parsing succeeded.
func parseTS(token string) (int64, bool) {
	if v, err := strconv.ParseInt(token, 10, 64); err == nil {
		return v, true
	}
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(token), time.UTC); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func parseFloat(token string) (float64, bool) {
	v, err := strconv.ParseFloat(token, 64)
	return v, err == nil
}

// deterministicEventID derives a 16-hex-char id from the raw payload
// content (price included for uniqueness): sha256 64-bit prefix.
func deterministicEventID(p *RawPayload) string {
	key := fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		p.Indicator, p.Symbol, p.TF, p.Signal, rawToken(p.TS), rawToken(p.Price))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// Normalize validates and converts a raw webhook payload into a canonical
// event. fallbackPrice is used when the payload carries no price (the
// ingress passes the last known market price, 0.0 when unknown). Returns a
// *ValidationError with a human-readable detail on rejection.
func Normalize(p *RawPayload, fallbackPrice float64) (*NormalizedEvent, error) {
	now := time.Now().Unix()

	rawSignal := strings.ToUpper(strings.TrimSpace(p.Signal))
	if !strictSignals[rawSignal] {
		return nil, &ValidationError{Detail: fmt.Sprintf("Invalid signal: '%s'. Expected BUY or SELL.", p.Signal)}
	}
	sig, ok := signalMap[rawSignal]
	if !ok {
		return nil, &ValidationError{Detail: fmt.Sprintf("Unknown signal: '%s'", p.Signal)}
	}

	tf := NormalizeTF(p.TF)
	if tf == "" {
		return nil, &ValidationError{Detail: fmt.Sprintf("Invalid timeframe: '%s'", p.TF)}
	}

	symbol := NormalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, &ValidationError{Detail: "Empty symbol after normalization"}
	}

	ts := now
	if token := rawToken(p.TS); token != "" {
		parsed, ok := parseTS(token)
		if !ok {
			return nil, &ValidationError{Detail: fmt.Sprintf("Cannot parse ts as integer: '%s'", token)}
		}
		if parsed != 0 {
			ts = parsed
		}
	}

	price := fallbackPrice
	if token := rawToken(p.Price); token != "" {
		parsed, ok := parseFloat(token)
		if !ok {
			return nil, &ValidationError{Detail: fmt.Sprintf("Cannot parse price as number: '%s'", token)}
		}
		price = parsed
	}

	strength := 0.5
	if token := rawToken(p.Strength); token != "" {
		if parsed, ok := parseFloat(token); ok {
			strength = clamp(parsed, 0.0, 1.0)
		}
	}

	eventID := p.EventID
	if eventID == "" {
		eventID = deterministicEventID(p)
	}

	return &NormalizedEvent{
		EventID:    eventID,
		ReceivedAt: now,
		TS:         ts,
		Indicator:  strings.TrimSpace(p.Indicator),
		Symbol:     symbol,
		TF:         tf,
		Signal:     sig,
		Strength:   strength,
		Price:      price,
		Raw:        p.Raw,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
