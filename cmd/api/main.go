package main

import (
	"errors"
	"log"

	"github.com/batchtrack/batchtrack/internal/auth"
	"github.com/batchtrack/batchtrack/internal/config"
	"github.com/batchtrack/batchtrack/internal/database"
	"github.com/batchtrack/batchtrack/internal/database/migrate"
	"github.com/batchtrack/batchtrack/internal/handlers"
	"github.com/batchtrack/batchtrack/internal/logging"
	"github.com/batchtrack/batchtrack/internal/metrics"
	"github.com/batchtrack/batchtrack/internal/routes"
	"github.com/batchtrack/batchtrack/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// 0. --- Load Environment Variables (.env) ---
	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: Could not find or load .env file. Relying on system environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Core.LogLevel, cfg.Core.Environment)

	// 1. --- Auth Setup ---
	auth.Configure(cfg.Security.JWTSecret, cfg.Security.TokenTTL)

	// 2. --- Database Connection ---
	db, err := database.Open(cfg.Core.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// 3. --- Schema Migrations ---
	if err := migrate.Run(cfg.Core.DatabaseDSN, "up"); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Msg("database schema is up to date")
		} else {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	} else {
		logger.Info().Msg("database migrations applied")
	}

	// 4. --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Application Setup ---
	app := &handlers.Handlers{
		DB:      db,
		Cfg:     cfg,
		Log:     logger,
		Metrics: m,
	}

	// 5. --- Background Workers (Cron) ---
	w := worker.New(db, cfg, logger)
	if err := w.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start background worker")
	}
	defer w.Stop()

	// --- Router Setup ---
	router := routes.SetupRouter(app)

	logger.Info().Str("addr", cfg.Core.Addr).Str("env", cfg.Core.Environment).Msg("starting BatchTrack API")
	if err := router.Run(cfg.Core.Addr); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
