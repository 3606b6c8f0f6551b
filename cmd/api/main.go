package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"agribid-backend/internal/config"
	"agribid-backend/internal/infrastructure/database"
	"agribid-backend/internal/interfaces/router"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}

	app, db, rdb, clock, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("App create failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("Database handle unavailable")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("Database connection failed")
		}
		if err := database.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		log.Info().Msg("Database connected")
	}
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Redis connection failed")
		}
		log.Info().Msg("Redis connected")
	}

	// Expiry sweeper runs until shutdown.
	go clock.Run(ctx, cfg.SweepInterval)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	log.Info().Str("port", cfg.Port).Msg("Server running")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
