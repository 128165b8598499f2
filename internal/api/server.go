// Package api is the HTTP surface: webhook ingress, query endpoints,
// admin surface and the live price websocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/config"
	"github.com/mertkaradayi/tvintel/internal/eval"
	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/store"
)

// Server is the REST/WS server plus the background-evaluation task group
// spawned by the webhook path.
type Server struct {
	router    *gin.Engine
	settings  *config.Settings
	store     *store.Store
	evaluator *eval.Evaluator
	stream    *market.Stream

	server    *http.Server
	startTime time.Time

	// background evaluations dispatched by webhook admissions
	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// Deps carries everything the server needs; the stream may be nil in
// tests.
type Deps struct {
	Settings  *config.Settings
	Store     *store.Store
	Evaluator *eval.Evaluator
	Stream    *market.Stream
}

// NewServer builds the router and task group. Call Start to listen.
func NewServer(deps Deps) *Server {
	if deps.Settings.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Admin-Token"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	bgCtx, bgCancel := context.WithCancel(context.Background())

	s := &Server{
		router:    router,
		settings:  deps.Settings,
		store:     deps.Store,
		evaluator: deps.Evaluator,
		stream:    deps.Stream,
		startTime: time.Now(),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}
	s.setupRoutes()
	return s
}

// Start blocks serving HTTP until Stop or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.settings.HTTPHost, s.settings.HTTPPort)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop shuts the listener down and drains in-flight background
// evaluations. Dropped publications are safe: store_latest is monotonic.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	s.bgCancel()
	drained := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Warn().Msg("Background evaluations abandoned at shutdown")
	}
	return nil
}

// spawnBackground dispatches the market+AI leg of a webhook admission,
// bounded to the server lifetime.
func (s *Server) spawnBackground(run func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		run(s.bgCtx)
	}()
}

// LoggerMiddleware logs one structured line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logEvent := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			logEvent = log.Error()
		}
		logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request")
	}
}

// RecoveryMiddleware turns panics into a plain 500 so a programmer bug
// never leaks internals to the caller.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		log.Error().
			Str("path", c.Request.URL.Path).
			Interface("error", err).
			Msg("unhandled_exception")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	})
}

// requireAdmin guards the admin surface with the shared token header.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != s.settings.AdminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid admin token"})
			return
		}
		c.Next()
	}
}
