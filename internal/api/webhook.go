package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/metrics"
	"github.com/mertkaradayi/tvintel/internal/signal"
)

// handleWebhook runs the admission pipeline: parse → secret → normalize →
// dedupe → rate-limit → persist → evaluate → publish fast → respond. The
// market+AI leg runs in the background; its failures never reach the
// response.
//
// TradingView sends Content-Type: text/plain, so the body is always
// parsed as raw JSON regardless of the header.
func (s *Server) handleWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON body"})
		return
	}

	var payload signal.RawPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON body"})
		return
	}

	if detail, ok := missingField(&payload); ok {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": detail})
		return
	}

	if payload.Secret != s.settings.TVWebhookSecret {
		log.Warn().
			Str("indicator", payload.Indicator).
			Str("symbol", payload.Symbol).
			Msg("invalid_secret")
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid secret"})
		return
	}

	// Preserve the payload on the event, secret removed.
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	delete(raw, "secret")
	payload.Raw = raw

	fallbackPrice := 0.0
	if len(payload.Price) == 0 {
		fallbackPrice = s.evaluator.Market.LastPrice(ctx, signal.NormalizeSymbol(payload.Symbol))
	}

	event, err := signal.Normalize(&payload, fallbackPrice)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	duplicate, err := s.store.IsDuplicate(ctx, event.EventID)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if duplicate {
		log.Info().Str("event_id", event.EventID).Msg("duplicate_event")
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusOK, gin.H{
			"status":   "duplicate",
			"event_id": event.EventID,
			"message":  "duplicate event",
		})
		return
	}

	exceeded, err := s.store.RateLimitExceeded(ctx, event.Symbol, s.settings.RateLimitWindowSec, s.settings.RateLimitMaxEvents)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if exceeded {
		metrics.WebhookEvents.WithLabelValues("rate_limited").Inc()
		c.JSON(http.StatusOK, gin.H{
			"status":   "rate_limited",
			"event_id": event.EventID,
			"message":  "rate limit exceeded",
		})
		return
	}

	cfg := s.store.LoadRuntimeConfig(ctx)

	data, err := json.Marshal(event)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if err := s.store.AppendEvent(ctx, event.Symbol, data, cfg.EventsMaxPerSymbol); err != nil {
		s.storeError(c, err)
		return
	}

	log.Info().
		Str("event_id", event.EventID).
		Str("indicator", event.Indicator).
		Str("symbol", event.Symbol).
		Str("tf", event.TF).
		Str("signal", string(event.Signal)).
		Msg("event_stored")

	rules, agg, err := s.evaluator.EvaluateRules(ctx, event.Symbol, cfg)
	if err != nil {
		s.storeError(c, err)
		return
	}

	// Fast layer goes out before the response and before the AI leg.
	if err := s.evaluator.StoreLatest(ctx, event.Symbol, rules, agg, nil, ""); err != nil {
		s.storeError(c, err)
		return
	}
	metrics.WebhookEvents.WithLabelValues("accepted").Inc()
	metrics.Evaluations.WithLabelValues("webhook").Inc()

	symbol := event.Symbol
	s.spawnBackground(func(ctx context.Context) {
		s.evaluator.RunBackground(ctx, symbol, rules, agg)
	})

	c.JSON(http.StatusOK, gin.H{
		"status":     "accepted",
		"event_id":   event.EventID,
		"decision":   rules.Decision,
		"bias":       rules.Bias,
		"confidence": rules.Confidence,
		"score":      rules.Score,
	})
}

// missingField mirrors schema validation: the five string fields are
// required on the wire.
func missingField(p *signal.RawPayload) (string, bool) {
	switch {
	case p.Secret == "":
		return "Field required: secret", true
	case p.Indicator == "":
		return "Field required: indicator", true
	case p.Symbol == "":
		return "Field required: symbol", true
	case p.TF == "":
		return "Field required: tf", true
	case p.Signal == "":
		return "Field required: signal", true
	}
	return "", false
}

// storeError maps store failures onto a 500 without leaking internals.
func (s *Server) storeError(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("store_error")
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}
