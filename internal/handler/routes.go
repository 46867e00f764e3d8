package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelops/netscout/internal/database"
	"github.com/sentinelops/netscout/internal/hub"
	"github.com/sentinelops/netscout/internal/middleware"
	"github.com/sentinelops/netscout/internal/service"
)

// Services bundles everything the router needs.
type Services struct {
	Scans     service.ScanService
	Hosts     service.HostService
	Tags      service.TagService
	Firmware  service.FirmwareService
	Dashboard service.DashboardService
	Network   service.NetworkService
	Export    service.ExportService
}

// NewRouter assembles the full API router with middleware, REST routes,
// websocket routes, and operational endpoints.
func NewRouter(svcs Services, wsHub *hub.Hub, db *database.Postgres, redis *database.Redis, corsOrigins []string, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(corsOrigins))

	r.Get("/health", healthHandler())
	r.Get("/ready", readyHandler(db, redis))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(redis, middleware.DefaultRateLimitConfig()))
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Mount("/scans", NewScanHandler(svcs.Scans).Routes())
		r.Mount("/hosts", NewHostHandler(svcs.Hosts).Routes())
		r.Mount("/tags", NewTagHandler(svcs.Tags).Routes())
		r.Mount("/firmware", NewFirmwareHandler(svcs.Firmware).Routes())
		r.Mount("/dashboard", NewDashboardHandler(svcs.Dashboard).Routes())
		r.Mount("/network", NewNetworkHandler(svcs.Network).Routes())
		r.Mount("/export", NewExportHandler(svcs.Export).Routes())
	})

	// Websockets bypass the request timeout; connections are long-lived.
	r.Mount("/ws", NewWSHandler(wsHub).Routes())

	return r
}

// healthHandler reports liveness.
func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// readyHandler reports readiness by pinging Postgres and Redis.
func readyHandler(db *database.Postgres, redis *database.Redis) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","component":"database"}`))
			return
		}

		if err := redis.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","component":"redis"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","database":"connected","redis":"connected"}`))
	}
}
