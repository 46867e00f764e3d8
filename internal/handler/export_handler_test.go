package handler

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/netscout/internal/models"
	"github.com/sentinelops/netscout/internal/service"
)

type mockExportService struct {
	scanFunc  func(ctx context.Context, id uuid.UUID) (*service.ScanExport, error)
	hostsFunc func(ctx context.Context) ([]*models.Host, error)
}

func (m *mockExportService) Scan(ctx context.Context, id uuid.UUID) (*service.ScanExport, error) {
	return m.scanFunc(ctx, id)
}

func (m *mockExportService) Hosts(ctx context.Context) ([]*models.Host, error) {
	return m.hostsFunc(ctx)
}

func exportFixture() *service.ScanExport {
	hostname := "printer.lan"
	ssh := "ssh"
	discovered := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &service.ScanExport{
		Scan: &models.Scan{ID: uuid.New(), Target: "192.168.1.0/24"},
		Hosts: []*models.Host{
			{
				MACAddress:   "AA:BB:CC:DD:EE:01",
				IPAddress:    "192.168.1.10",
				Hostname:     &hostname,
				IsUp:         true,
				DiscoveredAt: discovered,
				Tags:         []*models.Tag{{Name: "iot"}},
				Ports: []*models.Port{
					{PortNumber: 22, Protocol: "tcp", State: "open", ServiceName: &ssh},
					{PortNumber: 80, Protocol: "tcp", State: "open"},
				},
			},
			{
				MACAddress:   "AA:BB:CC:DD:EE:02",
				IPAddress:    "192.168.1.20",
				IsUp:         false,
				DiscoveredAt: discovered,
			},
		},
	}
}

func TestExportHandler_ScanCSV(t *testing.T) {
	fixture := exportFixture()
	h := NewExportHandler(&mockExportService{
		scanFunc: func(context.Context, uuid.UUID) (*service.ScanExport, error) {
			return fixture, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/scans/"+fixture.Scan.ID.String()+"?format=csv", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	// Header, two port rows for the first host, one bare row for the second.
	require.Len(t, rows, 4)
	assert.Equal(t, "IP Address", rows[0][0])
	assert.Equal(t, "22", rows[1][8])
	assert.Equal(t, "ssh", rows[1][11])
	assert.Equal(t, "iot", rows[1][14])
	assert.Equal(t, "80", rows[2][8])
	assert.Equal(t, "192.168.1.20", rows[3][0])
	assert.Equal(t, "down", rows[3][7])
	assert.Equal(t, "", rows[3][8])
}

func TestExportHandler_ScanJSON(t *testing.T) {
	fixture := exportFixture()
	h := NewExportHandler(&mockExportService{
		scanFunc: func(context.Context, uuid.UUID) (*service.ScanExport, error) {
			return fixture, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/scans/"+fixture.Scan.ID.String()+"?format=json", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"scan_target":"192.168.1.0/24"`)
	assert.Contains(t, rec.Body.String(), `"port":22`)
}

func TestExportHandler_RejectsUnknownFormat(t *testing.T) {
	h := NewExportHandler(&mockExportService{})

	req := httptest.NewRequest(http.MethodGet, "/scans/"+uuid.NewString()+"?format=xml", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandler_HostsCSVCountsOpenPorts(t *testing.T) {
	fixture := exportFixture()
	h := NewExportHandler(&mockExportService{
		hostsFunc: func(context.Context) ([]*models.Host, error) {
			return fixture.Hosts, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/hosts", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2", rows[1][7])
	assert.Equal(t, "0", rows[2][7])
}
