package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"speech-caption-service/internal/app"
	"speech-caption-service/internal/config"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application")
	}

	runErr := application.Run(ctx)
	if err := application.Close(); err != nil {
		log.Error().Err(err).Msg("Error releasing resources")
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("Speech caption service exited with error")
		os.Exit(1)
	}
}
