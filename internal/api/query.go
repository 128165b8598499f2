package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// tzTR renders event timestamps for the operator's timezone (UTC+3).
var tzTR = time.FixedZone("TR", 3*60*60)

// eventDateLayouts accepts the /events after/before filter formats.
var eventDateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	redisOK := s.store.Ping(ctx)

	status := "ok"
	if !redisOK {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             status,
		"redis_ok":           redisOK,
		"events_last_minute": s.store.EventsLastMinute(ctx, s.settings.RateLimitWindowSec),
		"uptime_seconds":     int(time.Since(s.startTime).Seconds()),
	})
}

func tsHuman(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// handleLatest returns the two-layer evaluation envelope with humanized
// timestamps added alongside the raw ones.
func (s *Server) handleLatest(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "symbol is required"})
		return
	}

	raw, err := s.store.GetLatest(c.Request.Context(), symbol)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if raw == "" {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("No evaluation found for %s", symbol)})
		return
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		s.storeError(c, err)
		return
	}

	if at, ok := data["evaluated_at"].(float64); ok {
		data["evaluated_at_human"] = tsHuman(int64(at))
	}
	if ai, ok := data["latest_ai"].(map[string]any); ok {
		if gen, ok := ai["generated_at"].(float64); ok && gen > 0 {
			ai["generated_at_human"] = tsHuman(int64(gen))
		}
	}
	if rules, ok := data["latest_rules"].(map[string]any); ok {
		if signals, ok := rules["signals_used"].([]any); ok {
			for _, raw := range signals {
				if sig, ok := raw.(map[string]any); ok {
					if ts, ok := sig["ts"].(float64); ok && ts > 0 {
						sig["ts_human"] = tsHuman(int64(ts))
					}
				}
			}
		}
	}

	c.JSON(http.StatusOK, data)
}

// handlePrice returns the current price (live stream first, klines as a
// fallback) plus the per-interval market summaries.
func (s *Server) handlePrice(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "symbol is required"})
		return
	}

	var price float64
	if s.stream != nil {
		price, _ = s.stream.Price(symbol)
	}
	if price == 0 {
		price = s.evaluator.Market.LastPrice(c.Request.Context(), symbol)
	}
	if price == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Price not found for %s", symbol)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"price":  price,
		"market": s.evaluator.Market.Summaries(c.Request.Context(), symbol),
	})
}

// handleEvents browses the stored event log for a symbol, newest first,
// with optional field and date filters.
func (s *Server) handleEvents(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "symbol is required"})
		return
	}

	limit := 50
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	var afterTS, beforeTS int64
	for _, f := range []struct {
		label string
		value string
		dest  *int64
	}{
		{"after", c.Query("after"), &afterTS},
		{"before", c.Query("before"), &beforeTS},
	} {
		if f.value == "" {
			continue
		}
		parsed, ok := parseEventDate(f.value)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"detail": fmt.Sprintf("Invalid %s format: '%s'. Use YYYY-MM-DD or YYYY-MM-DD HH:MM", f.label, f.value),
			})
			return
		}
		*f.dest = parsed
	}

	indicator := c.Query("indicator")
	tf := c.Query("tf")
	sigFilter := c.Query("signal")

	// Over-fetch: filters may discard entries.
	raws, err := s.store.RecentEvents(c.Request.Context(), symbol, limit*3)
	if err != nil {
		s.storeError(c, err)
		return
	}

	events := make([]map[string]any, 0, limit)
	for i := len(raws) - 1; i >= 0; i-- { // newest first
		var ev map[string]any
		if err := json.Unmarshal([]byte(raws[i]), &ev); err != nil {
			continue
		}

		delete(ev, "secret")
		if inner, ok := ev["raw"].(map[string]any); ok {
			delete(inner, "secret")
		}

		ts, _ := ev["ts"].(float64)
		if afterTS != 0 && int64(ts) < afterTS {
			continue
		}
		if beforeTS != 0 && int64(ts) > beforeTS {
			continue
		}

		if indicator != "" && !strings.EqualFold(stringField(ev, "indicator"), indicator) {
			continue
		}
		if tf != "" && !strings.EqualFold(stringField(ev, "tf"), tf) {
			continue
		}
		if sigFilter != "" && !strings.EqualFold(stringField(ev, "signal"), sigFilter) {
			continue
		}

		if ts > 0 {
			ev["ts_human"] = time.Unix(int64(ts), 0).In(tzTR).Format("2006-01-02 15:04:05 TR")
		}
		if recv, ok := ev["received_at"].(float64); ok && recv > 0 {
			ev["received_at_human"] = time.Unix(int64(recv), 0).In(tzTR).Format("2006-01-02 15:04:05 TR")
		}

		events = append(events, ev)
		if len(events) >= limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"count":  len(events),
		"events": events,
	})
}

func parseEventDate(val string) (int64, bool) {
	for _, layout := range eventDateLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(val), time.UTC); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
