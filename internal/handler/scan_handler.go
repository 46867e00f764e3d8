// Package handler provides HTTP handlers for the netscout API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/pkg/response"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/service"
)

// ScanHandler handles scan-related HTTP requests.
type ScanHandler struct {
	scanService service.ScanService
	validate    *validator.Validate
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(scanService service.ScanService) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
		validate:    validator.New(),
	}
}

// Routes returns a chi router with scan routes.
func (h *ScanHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/cancel", h.Cancel)
	r.Get("/{id}/logs", h.Logs)

	return r
}

// Create handles POST /api/scans
func (h *ScanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("target", err.Error()))
		return
	}

	scan, err := h.scanService.Create(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Created(w, scan)
}

// List handles GET /api/scans
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ScanFilter{
		Status:   models.ScanStatus(q.Get("status")),
		Search:   q.Get("search"),
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("page_size"), 20),
	}

	scans, total, err := h.scanService.List(r.Context(), filter)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, scans, paginationMeta(filter.Page, filter.PageSize, total))
}

// scanDetailResponse is a scan together with its log trail.
type scanDetailResponse struct {
	*models.Scan
	Logs []*models.ScanLog `json:"logs"`
}

// Get handles GET /api/scans/{id}
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid scan ID"))
		return
	}

	scan, err := h.scanService.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	logs, err := h.scanService.Logs(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if logs == nil {
		logs = []*models.ScanLog{}
	}

	response.OK(w, scanDetailResponse{Scan: scan, Logs: logs})
}

// Update handles PATCH /api/scans/{id}
func (h *ScanHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid scan ID"))
		return
	}

	var req service.UpdateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("name", err.Error()))
		return
	}

	scan, err := h.scanService.Update(r.Context(), id, req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, scan)
}

// Delete handles DELETE /api/scans/{id}
func (h *ScanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid scan ID"))
		return
	}

	if err := h.scanService.Delete(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}

	response.NoContent(w)
}

// Cancel handles POST /api/scans/{id}/cancel
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid scan ID"))
		return
	}

	scan, err := h.scanService.Cancel(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, scan)
}

// Logs handles GET /api/scans/{id}/logs
func (h *ScanHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid scan ID"))
		return
	}

	logs, err := h.scanService.Logs(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, logs)
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// paginationMeta builds the response meta block for a paged list.
func paginationMeta(page, pageSize int, total int64) *response.Meta {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &response.Meta{
		Page:       page,
		PerPage:    pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}
