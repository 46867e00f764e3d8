package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelops/netscout/internal/pkg/response"
	"github.com/sentinelops/netscout/internal/service"
)

// DashboardHandler serves the aggregate stats the UI dashboard renders.
type DashboardHandler struct {
	dashboardService service.DashboardService
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(dashboardService service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// Routes returns a chi router with dashboard routes.
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/summary", h.Summary)
	return r
}

// Summary handles GET /api/dashboard/summary
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService.Stats(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, stats)
}
