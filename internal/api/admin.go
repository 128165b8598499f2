package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/signal"
)

// handleUpdateConfig replaces the runtime config atomically. Fields
// absent from the request body keep their default values, so a partial
// body is a reset-plus-override, not a merge with the stored config.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON body"})
		return
	}

	cfg := signal.DefaultRuntimeConfig()
	if err := json.Unmarshal(body, cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON body"})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if err := s.store.SaveRuntimeConfig(c.Request.Context(), cfg); err != nil {
		s.storeError(c, err)
		return
	}

	log.Info().
		Strs("watchlist", cfg.WatchlistSymbols).
		Float64("threshold", cfg.Threshold).
		Msg("config_updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"config": cfg,
	})
}

// handleDeleteEvent removes a single stored event by its deterministic id.
func (s *Server) handleDeleteEvent(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	eventID := c.Query("event_id")
	if eventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "event_id is required"})
		return
	}

	ctx := c.Request.Context()
	raws, err := s.store.AllEvents(ctx, symbol)
	if err != nil {
		s.storeError(c, err)
		return
	}

	for _, raw := range raws {
		var ev struct {
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		if ev.EventID != eventID {
			continue
		}
		if _, err := s.store.RemoveEvent(ctx, symbol, raw); err != nil {
			s.storeError(c, err)
			return
		}
		log.Info().Str("symbol", symbol).Str("event_id", eventID).Msg("event_deleted")
		c.JSON(http.StatusOK, gin.H{"deleted": true, "event_id": eventID})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Event %s not found for %s", eventID, symbol)})
}
