package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelops/netscout/internal/pkg/response"
	"github.com/sentinelops/netscout/internal/service"
)

// NetworkHandler serves local-network discovery for the scan form.
type NetworkHandler struct {
	networkService service.NetworkService
}

// NewNetworkHandler creates a new network handler.
func NewNetworkHandler(networkService service.NetworkService) *NetworkHandler {
	return &NetworkHandler{networkService: networkService}
}

// Routes returns a chi router with network routes.
func (h *NetworkHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/subnets", h.Subnets)
	return r
}

// Subnets handles GET /api/network/subnets
func (h *NetworkHandler) Subnets(w http.ResponseWriter, r *http.Request) {
	subnets, err := h.networkService.Subnets(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, subnets)
}
