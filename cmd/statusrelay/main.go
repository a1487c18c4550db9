// Command statusrelay keeps a set of live entities polled through a status
// hub, streams every delivery to Pub/Sub and the observation archive, and
// serves the cached values over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "statusrelay.yaml", "path to the relay configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}
	logger = logger.Level(parseLevel(cfg.LogLevel)).With().Str("service", cfg.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, err := NewRelay(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build relay.")
	}
	if err := relay.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start relay.")
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := relay.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Relay shutdown incomplete.")
		os.Exit(1)
	}
	logger.Info().Msg("Relay stopped.")
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
