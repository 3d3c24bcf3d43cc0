package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chungtau/mti-gateway/internal/config"
	"github.com/chungtau/mti-gateway/internal/logging"
	"github.com/chungtau/mti-gateway/internal/server"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := config.Load()
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Logger = logger

	logger.Info().Msg("initializing server")
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
