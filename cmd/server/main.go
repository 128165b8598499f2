// Command server runs the TradingView alert ingestion and evaluation
// service: webhook ingress, rules engine, AI explanations, refresh
// scheduler and the query/admin HTTP surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/ai"
	"github.com/mertkaradayi/tvintel/internal/api"
	"github.com/mertkaradayi/tvintel/internal/config"
	"github.com/mertkaradayi/tvintel/internal/eval"
	"github.com/mertkaradayi/tvintel/internal/market"
	"github.com/mertkaradayi/tvintel/internal/scheduler"
	"github.com/mertkaradayi/tvintel/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	settings, err := config.Load()
	if err != nil {
		config.InitLogger("info", true)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(settings.LogLevel, settings.LogJSON)

	ctx := context.Background()

	st, err := store.NewFromURL(ctx, settings.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer st.Close()

	marketClient := market.NewClient()
	stream := market.NewStream()
	stream.Start(ctx)

	explainer := ai.NewExplainer(settings.AIProvider, settings.AIAPIKey, settings.AIModel, settings.AIBaseURL)

	evaluator := &eval.Evaluator{
		Store:     st,
		Market:    marketClient,
		Explainer: explainer,
	}

	sched := scheduler.New(st, evaluator)
	sched.Start(ctx)

	server := api.NewServer(api.Deps{
		Settings:  settings,
		Store:     st,
		Evaluator: evaluator,
		Stream:    stream,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}

	sched.Stop()
	stream.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	log.Info().Msg("Shutdown complete")
}
