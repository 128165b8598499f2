package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes wires the full HTTP surface.
func (s *Server) setupRoutes() {
	// Ingress
	s.router.POST("/tv-webhook", s.handleWebhook)

	// Health + metrics
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Query surface
	s.router.GET("/latest", s.handleLatest)
	s.router.GET("/price", s.handlePrice)
	s.router.GET("/events", s.handleEvents)

	// Admin surface
	admin := s.router.Group("/", s.requireAdmin())
	{
		admin.POST("/config", s.handleUpdateConfig)
		admin.DELETE("/events/:symbol", s.handleDeleteEvent)
	}

	// Live prices
	s.router.GET("/ws/prices", s.handlePricesWS)
}
