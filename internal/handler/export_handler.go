package handler

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/pkg/response"
	"github.com/sentinelops/netscout/internal/service"
)

// ExportHandler serves downloadable CSV and JSON snapshots of scan results
// and the device inventory.
type ExportHandler struct {
	exportService service.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exportService service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// Routes returns a chi router with export routes.
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/scans/{id}", h.Scan)
	r.Get("/hosts", h.Hosts)
	return r
}

// exportedPort is the port shape in scan export JSON.
type exportedPort struct {
	Port     int     `json:"port"`
	Protocol string  `json:"protocol"`
	State    string  `json:"state"`
	Service  *string `json:"service"`
	Version  *string `json:"version"`
	Product  *string `json:"product"`
}

// exportedHost is the host shape in scan export JSON.
type exportedHost struct {
	IPAddress    string         `json:"ip_address"`
	MACAddress   string         `json:"mac_address"`
	Hostname     *string        `json:"hostname"`
	Vendor       *string        `json:"vendor"`
	OSName       *string        `json:"os_name"`
	OSFamily     *string        `json:"os_family"`
	OSAccuracy   *int           `json:"os_accuracy"`
	IsUp         bool           `json:"is_up"`
	DiscoveredAt string         `json:"discovered_at"`
	Tags         []string       `json:"tags"`
	Ports        []exportedPort `json:"ports"`
}

// Scan handles GET /api/export/scans/{id}?format=csv|json
func (h *ExportHandler) Scan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid scan ID"))
		return
	}

	format, ok := exportFormat(r)
	if !ok {
		response.Error(w, apierrors.NewValidationError("format", "format must be csv or json"))
		return
	}

	export, err := h.exportService.Scan(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}

	if format == "json" {
		hosts := make([]exportedHost, 0, len(export.Hosts))
		for _, host := range export.Hosts {
			eh := exportedHost{
				IPAddress:    host.IPAddress,
				MACAddress:   host.MACAddress,
				Hostname:     host.Hostname,
				Vendor:       host.Vendor,
				OSName:       host.OSName,
				OSFamily:     host.OSFamily,
				OSAccuracy:   host.OSAccuracy,
				IsUp:         host.IsUp,
				DiscoveredAt: host.DiscoveredAt.Format(time.RFC3339),
				Tags:         tagNames(host.Tags),
				Ports:        make([]exportedPort, 0, len(host.Ports)),
			}
			for _, p := range host.Ports {
				eh.Ports = append(eh.Ports, exportedPort{
					Port:     p.PortNumber,
					Protocol: p.Protocol,
					State:    p.State,
					Service:  p.ServiceName,
					Version:  p.ServiceVersion,
					Product:  p.ServiceProduct,
				})
			}
			hosts = append(hosts, eh)
		}

		writeDownloadHeaders(w, fmt.Sprintf("scan_%s.json", id), "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"scan_id":     export.Scan.ID,
			"scan_target": export.Scan.Target,
			"hosts":       hosts,
		})
		return
	}

	writeDownloadHeaders(w, fmt.Sprintf("scan_%s.csv", id), "text/csv")
	cw := csv.NewWriter(w)
	cw.Write([]string{
		"IP Address", "MAC Address", "Hostname", "Vendor", "OS", "OS Family",
		"OS Accuracy", "Status", "Port", "Protocol", "State", "Service",
		"Version", "Product", "Tags", "Discovered At",
	})
	for _, host := range export.Hosts {
		base := []string{
			host.IPAddress, host.MACAddress, strDeref(host.Hostname), strDeref(host.Vendor),
			strDeref(host.OSName), strDeref(host.OSFamily), intDeref(host.OSAccuracy),
			upDown(host.IsUp),
		}
		tail := []string{
			strings.Join(tagNames(host.Tags), "; "),
			host.DiscoveredAt.Format(time.RFC3339),
		}
		if len(host.Ports) == 0 {
			cw.Write(append(append(base, "", "", "", "", "", ""), tail...))
			continue
		}
		for _, p := range host.Ports {
			row := append(base[:8:8],
				strconv.Itoa(p.PortNumber), p.Protocol, p.State,
				strDeref(p.ServiceName), strDeref(p.ServiceVersion), strDeref(p.ServiceProduct),
			)
			cw.Write(append(row, tail...))
		}
	}
	cw.Flush()
}

// Hosts handles GET /api/export/hosts?format=csv|json
func (h *ExportHandler) Hosts(w http.ResponseWriter, r *http.Request) {
	format, ok := exportFormat(r)
	if !ok {
		response.Error(w, apierrors.NewValidationError("format", "format must be csv or json"))
		return
	}

	hosts, err := h.exportService.Hosts(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	if format == "json" {
		rows := make([]map[string]any, 0, len(hosts))
		for _, host := range hosts {
			rows = append(rows, map[string]any{
				"ip_address":    host.IPAddress,
				"mac_address":   host.MACAddress,
				"hostname":      host.Hostname,
				"vendor":        host.Vendor,
				"os_name":       host.OSName,
				"os_family":     host.OSFamily,
				"is_up":         host.IsUp,
				"discovered_at": host.DiscoveredAt.Format(time.RFC3339),
				"tags":          tagNames(host.Tags),
				"ports_count":   len(host.Ports),
			})
		}

		writeDownloadHeaders(w, "hosts_export.json", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"total": len(rows), "hosts": rows})
		return
	}

	writeDownloadHeaders(w, "hosts_export.csv", "text/csv")
	cw := csv.NewWriter(w)
	cw.Write([]string{
		"IP Address", "MAC Address", "Hostname", "Vendor", "OS", "OS Family",
		"Status", "Open Ports", "Tags", "Discovered At",
	})
	for _, host := range hosts {
		open := 0
		for _, p := range host.Ports {
			if p.State == "open" {
				open++
			}
		}
		cw.Write([]string{
			host.IPAddress, host.MACAddress, strDeref(host.Hostname), strDeref(host.Vendor),
			strDeref(host.OSName), strDeref(host.OSFamily), upDown(host.IsUp),
			strconv.Itoa(open),
			strings.Join(tagNames(host.Tags), "; "),
			host.DiscoveredAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
}

// exportFormat reads the format query parameter, defaulting to csv.
func exportFormat(r *http.Request) (string, bool) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		return "", false
	}
	return format, true
}

func writeDownloadHeaders(w http.ResponseWriter, filename, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
}

func tagNames(tags []*models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intDeref(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
