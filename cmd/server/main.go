// Package main is the entry point for the netscout API server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinelops/netscout/internal/config"
	"github.com/sentinelops/netscout/internal/database"
	"github.com/sentinelops/netscout/internal/handler"
	"github.com/sentinelops/netscout/internal/hub"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/scanner"
	"github.com/sentinelops/netscout/internal/scheduler"
	"github.com/sentinelops/netscout/internal/service"
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

	logger.Info("Starting netscout API",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
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
	tagRepo := repository.NewTagRepository(db.Pool())
	firmwareRepo := repository.NewFirmwareRepository(db.Pool())

	svcs := handler.Services{
		Scans:     service.NewScanService(scanRepo, sched),
		Hosts:     service.NewHostService(hostRepo, tagRepo, cfg.Server.DevicesDir),
		Tags:      service.NewTagService(tagRepo),
		Firmware:  service.NewFirmwareService(firmwareRepo, hostRepo, sched),
		Dashboard: service.NewDashboardService(scanRepo, hostRepo, firmwareRepo),
		Network:   service.NewNetworkService(scanner.NewExecRunner(logger)),
		Export:    service.NewExportService(scanRepo, hostRepo),
	}

	// The hub relays worker progress events to websocket clients.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := hub.New(sched, logger)
	go wsHub.Run(ctx)

	r := handler.NewRouter(svcs, wsHub, db, redis, cfg.Server.CORSOrigins, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}
