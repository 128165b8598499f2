package ai

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/signal"
)

// fallbackExplanation renders the six-line Turkish template. Deterministic
// for a given evaluation; used by Dummy and whenever a provider call
// fails. No definitive trade advice by design of the template text.
func fallbackExplanation(rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) string {
	m4h := summaries["4h"]
	m1h := summaries["1h"]

	trend4h := "asagi"
	if m4h.Slope > 0 {
		trend4h = "yukari"
	}
	trend1h := "asagi"
	if m1h.Slope > 0 {
		trend1h = "yukari"
	}

	var tfSignals []string
	for _, tf := range agg.Order() {
		for _, ind := range agg.Timeframes[tf].Indicators {
			tfSignals = append(tfSignals, fmt.Sprintf("%s@%s=%s", ind.Indicator, tf, ind.Signal))
		}
	}
	signalLine := strings.Join(tfSignals, ", ")
	if signalLine == "" {
		signalLine = "sinyal yok"
	}

	vetoText := ""
	if rules.VetoApplied {
		vetoText = fmt.Sprintf(" (Veto: %s)", rules.VetoReason)
	}

	return fmt.Sprintf(
		"1) Genel Durum: %s (%d/100)%s\n"+
			"2) Trend: 4H %s (slope=%+.2f) | 1H %s (slope=%+.2f)\n"+
			"3) Sinyal Ozeti: %s\n"+
			"4) Senaryo A: Yukselis devam ederse mevcut bias (%s) yonunde hareket.\n"+
			"5) Senaryo B: Dusus olursa bias degisebilir, stop/hedge degerlendir.\n"+
			"6) Risk: Skor=%.3f, esik=%s. Kesin al/sat degil, kendi analizinle dogrula.",
		rules.Decision, rules.Confidence, vetoText,
		trend4h, m4h.Slope, trend1h, m1h.Slope,
		signalLine,
		rules.Bias,
		rules.Score, strconv.FormatFloat(rules.Threshold, 'g', -1, 64),
	)
}

// buildPrompt assembles the analyst prompt for the LLM provider.
func buildPrompt(rules *signal.RulesOutput, agg *signal.AggregationResult, summaries map[string]market.Summary) string {
	var tfLines []string
	for _, tf := range []string{"4h", "1h", "15m"} {
		ms, okM := summaries[tf]
		ts, okT := agg.Timeframes[tf]
		if !okM || !okT {
			continue
		}
		var inds []string
		for _, ind := range ts.Indicators {
			inds = append(inds, fmt.Sprintf("%s=%s", ind.Indicator, ind.Signal))
		}
		indLine := strings.Join(inds, ", ")
		if indLine == "" {
			indLine = "yok"
		}
		tfLines = append(tfLines, fmt.Sprintf("  %s: price=%v, slope=%+.2f, green/red=%d/%d, sinyaller=[%s]",
			tf, ms.LastPrice, ms.Slope, ms.GreenCandles, ms.RedCandles, indLine))
	}

	reasons := strings.Join(rules.Reasons, "; ")
	if reasons == "" {
		reasons = "yok"
	}
	vetoReason := rules.VetoReason
	if vetoReason == "" {
		vetoReason = "yok"
	}

	return fmt.Sprintf(`Sen bir kripto piyasa analisti asistansın. Kesin al/sat emri VERMEDEN aşağıdaki verilere göre
6 satırlık Türkçe özet üret. Şablon:

1) Genel Durum: {decision} ({confidence}/100)
2) Trend: 4H ... | 1H ...
3) Sinyal Özeti: hangi indikatör hangi tf'de ne dedi (kısa)
4) Senaryo A: yükseliş olursa ...
5) Senaryo B: düşüş olursa ...
6) Risk: volatilite/stop şart, "kesin al/sat" yok

Veriler:
- Symbol: %s
- Karar: %s | Eğilim: %s | Güven: %d/100 | Skor: %v
- Eşik: %v | Veto: %t (%s)
- Nedenler: %s
- Piyasa:
%s

6 satırlık özeti Türkçe yaz. "Kesin al/sat" ifadesi kullanma.`,
		rules.Symbol,
		rules.Decision, rules.Bias, rules.Confidence, rules.Score,
		rules.Threshold, rules.VetoApplied, vetoReason,
		reasons,
		strings.Join(tfLines, "\n"),
	)
}
