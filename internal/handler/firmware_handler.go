package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/pkg/response"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/service"
)

// FirmwareHandler handles firmware analysis HTTP requests.
type FirmwareHandler struct {
	firmwareService service.FirmwareService
	validate        *validator.Validate
}

// NewFirmwareHandler creates a new firmware handler.
func NewFirmwareHandler(firmwareService service.FirmwareService) *FirmwareHandler {
	return &FirmwareHandler{
		firmwareService: firmwareService,
		validate:        validator.New(),
	}
}

// Routes returns a chi router with firmware routes.
func (h *FirmwareHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Start)
	r.Get("/summary", h.Summary)
	r.Post("/batch", h.StartBatch)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/cancel", h.Cancel)
	r.Get("/{id}/report", h.Report)

	return r
}

// StartHTTPRequest is the HTTP request body for starting an analysis.
type StartHTTPRequest struct {
	HostMAC     string  `json:"host_mac" validate:"required,mac"`
	FirmwareURL *string `json:"firmware_url,omitempty" validate:"omitempty,url"`
}

// Start handles POST /api/firmware
func (h *FirmwareHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("host_mac", err.Error()))
		return
	}

	fa, err := h.firmwareService.Start(r.Context(), req.HostMAC, service.StartAnalysisRequest{
		FirmwareURL: req.FirmwareURL,
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Created(w, fa)
}

// StartBatch handles POST /api/firmware/batch
func (h *FirmwareHandler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req service.BatchAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("macs", err.Error()))
		return
	}

	result, err := h.firmwareService.StartBatch(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.Created(w, result)
}

// List handles GET /api/firmware
func (h *FirmwareHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.FirmwareFilter{
		HostMAC:  q.Get("host_mac"),
		Status:   models.FirmwareStatus(q.Get("status")),
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("page_size"), 20),
	}

	analyses, total, err := h.firmwareService.List(r.Context(), filter)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, analyses, paginationMeta(filter.Page, filter.PageSize, total))
}

// Summary handles GET /api/firmware/summary
func (h *FirmwareHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.firmwareService.Summary(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, summary)
}

// Get handles GET /api/firmware/{id}
func (h *FirmwareHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid analysis ID"))
		return
	}

	fa, err := h.firmwareService.Get(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, fa)
}

// Cancel handles POST /api/firmware/{id}/cancel
func (h *FirmwareHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid analysis ID"))
		return
	}

	fa, err := h.firmwareService.Cancel(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, fa)
}

// Delete handles DELETE /api/firmware/{id}
func (h *FirmwareHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid analysis ID"))
		return
	}

	if err := h.firmwareService.Delete(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}

	response.NoContent(w)
}

// Report handles GET /api/firmware/{id}/report. The report is served as
// markdown, not wrapped in the JSON envelope.
func (h *FirmwareHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid analysis ID"))
		return
	}

	report, err := h.firmwareService.Report(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(report))
}
