package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/pkg/response"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/service"
)

// HostHandler handles device inventory HTTP requests.
type HostHandler struct {
	hostService service.HostService
	validate    *validator.Validate
}

// NewHostHandler creates a new host handler.
func NewHostHandler(hostService service.HostService) *HostHandler {
	return &HostHandler{
		hostService: hostService,
		validate:    validator.New(),
	}
}

// Routes returns a chi router with host routes.
func (h *HostHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/export", h.Export)
	r.Post("/import", h.Import)
	r.Get("/{mac}", h.Get)
	r.Patch("/{mac}", h.Update)
	r.Delete("/{mac}", h.Delete)
	r.Post("/{mac}/tags/{tagID}", h.AttachTag)
	r.Delete("/{mac}/tags/{tagID}", h.DetachTag)

	return r
}

// List handles GET /api/hosts
func (h *HostHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.HostFilter{
		IPAddress: q.Get("ip_address"),
		OSFamily:  q.Get("os_family"),
		TagName:   q.Get("tag"),
		Search:    q.Get("search"),
		Page:      queryInt(q.Get("page"), 1),
		PageSize:  queryInt(q.Get("page_size"), 50),
	}
	if raw := q.Get("scan_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid scan_id"))
			return
		}
		filter.ScanID = &id
	}
	if raw := q.Get("is_up"); raw != "" {
		up := raw == "true" || raw == "1"
		filter.IsUp = &up
	}
	if raw := q.Get("has_open_ports"); raw == "true" || raw == "1" {
		filter.HasOpenPorts = true
	}

	hosts, total, err := h.hostService.List(r.Context(), filter)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, hosts, paginationMeta(filter.Page, filter.PageSize, total))
}

// Get handles GET /api/hosts/{mac}
func (h *HostHandler) Get(w http.ResponseWriter, r *http.Request) {
	host, err := h.hostService.Get(r.Context(), chi.URLParam(r, "mac"))
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, host)
}

// Update handles PATCH /api/hosts/{mac}
func (h *HostHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("host", err.Error()))
		return
	}

	host, err := h.hostService.Update(r.Context(), chi.URLParam(r, "mac"), req)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, host)
}

// Delete handles DELETE /api/hosts/{mac}
func (h *HostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.hostService.Delete(r.Context(), chi.URLParam(r, "mac")); err != nil {
		response.Error(w, err)
		return
	}

	response.NoContent(w)
}

// AttachTag handles POST /api/hosts/{mac}/tags/{tagID}
func (h *HostHandler) AttachTag(w http.ResponseWriter, r *http.Request) {
	tagID, err := uuid.Parse(chi.URLParam(r, "tagID"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid tag ID"))
		return
	}

	host, err := h.hostService.AttachTag(r.Context(), chi.URLParam(r, "mac"), tagID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, host)
}

// DetachTag handles DELETE /api/hosts/{mac}/tags/{tagID}
func (h *HostHandler) DetachTag(w http.ResponseWriter, r *http.Request) {
	tagID, err := uuid.Parse(chi.URLParam(r, "tagID"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid tag ID"))
		return
	}

	host, err := h.hostService.DetachTag(r.Context(), chi.URLParam(r, "mac"), tagID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, host)
}

// Export handles POST /api/hosts/export
func (h *HostHandler) Export(w http.ResponseWriter, r *http.Request) {
	result, err := h.hostService.Export(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}

// Import handles POST /api/hosts/import
func (h *HostHandler) Import(w http.ResponseWriter, r *http.Request) {
	result, err := h.hostService.Import(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}
