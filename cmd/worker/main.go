// Package main is the entry point for the netscout job worker.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentinelops/netscout/internal/config"
	"github.com/sentinelops/netscout/internal/database"
	"github.com/sentinelops/netscout/internal/firmware"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/scanner"
	"github.com/sentinelops/netscout/internal/scheduler"
	"github.com/sentinelops/netscout/internal/worker"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting netscout worker",
		slog.String("environment", cfg.Server.Environment),
	)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	redis, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	sched := scheduler.New(redis.Client(), logger)

	scanRepo := repository.NewScanRepository(db.Pool())
	hostRepo := repository.NewHostRepository(db.Pool())
	firmwareRepo := repository.NewFirmwareRepository(db.Pool())

	runner := scanner.NewExecRunner(logger)
	scanPipe := scanner.NewPipeline(cfg.Scanner, runner, logger)
	fwPipe := firmware.NewPipeline(cfg.Firmware, runner, logger)

	w := worker.New(cfg, scanRepo, hostRepo, firmwareRepo, sched, scanPipe, fwPipe, logger)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		logger.Info("Shutting down worker", slog.String("signal", sig.String()))
		cancel()
	}()

	// Run blocks until the context is cancelled and in-flight jobs drain.
	w.Run(ctx)

	logger.Info("Worker stopped gracefully")
}
