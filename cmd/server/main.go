package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hallwayhq/hallway/internal/config"
	"github.com/hallwayhq/hallway/internal/relay"
	"github.com/hallwayhq/hallway/internal/server"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	// The hub carries connections, the relay decides what happens on them;
	// they reference each other, so wiring is two-step.
	hub := server.NewHub(logger)
	rel := relay.New(hub, logger)
	hub.Bind(rel)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := relay.NewSweeper(rel, cfg.SweepInterval, cfg.SessionIdleTTL, logger)
	go sweeper.Run(sweepCtx)

	router := server.NewRouter(logger, hub, rel, cfg)
	srv := server.NewHTTPServer(cfg.Port, router)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting hallway relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server forced to shut down")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("hub shutdown incomplete")
	}

	logger.Info().Msg("server stopped")
}
