package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/user/forum-subscriptions/internal/config"
	"github.com/user/forum-subscriptions/internal/events"
	"github.com/user/forum-subscriptions/internal/scheduler"
	"github.com/user/forum-subscriptions/internal/server"
	"github.com/user/forum-subscriptions/internal/store"
	"github.com/user/forum-subscriptions/internal/subscription"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().Str("driver", cfg.DB.Driver).Str("sink", cfg.Events.Sink).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	sink, closeSink, err := events.Open(&cfg.Events)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open event sink")
	}
	log.Info().Msg("Event sink initialized")

	// One cache per process, shared by every request
	cache := subscription.NewCache(st)
	service := subscription.NewService(cache, sink)

	sched := scheduler.NewScheduler(cache, &cfg.Cache)
	httpServer := server.NewServer(st, service)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	sched.Start(ctx)

	log.Info().Msg("Forum subscription service started successfully")

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	log.Info().Msg("Starting graceful shutdown...")

	// 1. Stop taking requests so no mutation is left half published
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	} else {
		log.Info().Msg("HTTP server stopped")
	}

	// 2. Stop cache resets
	sched.Stop()

	// 3. Flush and close the event sink
	if err := closeSink(); err != nil {
		log.Error().Err(err).Msg("Error closing event sink")
	} else {
		log.Info().Msg("Event sink closed")
	}

	// 4. Close database connection pool
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	} else {
		log.Info().Msg("Database connection closed")
	}

	cancel()

	select {
	case <-shutdownCtx.Done():
		if shutdownCtx.Err() == context.DeadlineExceeded {
			log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
		}
	default:
		log.Info().Msg("Graceful shutdown completed")
	}
}
