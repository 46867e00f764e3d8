package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelops/netscout/internal/hub"
)

// WSHandler upgrades websocket connections and hands them to the hub.
type WSHandler struct {
	hub *hub.Hub
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

// Routes returns a chi router with websocket routes.
func (h *WSHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/scans/{id}", h.Scan)
	r.Get("/firmware/{id}", h.Firmware)
	r.Get("/live", h.Live)

	return r
}

// Scan handles GET /ws/scans/{id}
func (h *WSHandler) Scan(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeScan(w, r, chi.URLParam(r, "id"))
}

// Firmware handles GET /ws/firmware/{id}
func (h *WSHandler) Firmware(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeFirmware(w, r, chi.URLParam(r, "id"))
}

// Live handles GET /ws/live
func (h *WSHandler) Live(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeLive(w, r)
}
