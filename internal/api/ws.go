package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/metrics"
)

const pricePushInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handlePricesWS streams the live price snapshot to the client once a
// second. The connection closes on the first write failure; clients are
// expected to reconnect.
func (s *Server) handlePricesWS(c *gin.Context) {
	if s.stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Price stream not available"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws_upgrade_failed")
		return
	}
	defer conn.Close()

	metrics.WSClients.Inc()
	defer metrics.WSClients.Dec()

	// Drain client frames so close handshakes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pricePushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			snapshot := s.stream.Snapshot()
			if err := conn.WriteJSON(gin.H{
				"type":   "prices",
				"ts":     time.Now().Unix(),
				"prices": snapshot,
			}); err != nil {
				return
			}
		}
	}
}
