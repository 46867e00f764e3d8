package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/service"
)

type mockHostService struct {
	getFunc    func(ctx context.Context, mac string) (*models.Host, error)
	listFunc   func(ctx context.Context, filter repository.HostFilter) ([]*models.Host, int64, error)
	updateFunc func(ctx context.Context, mac string, req service.UpdateHostRequest) (*models.Host, error)
	exportFunc func(ctx context.Context) (*service.ExportResult, error)
	importFunc func(ctx context.Context) (*service.ImportResult, error)
}

func (m *mockHostService) Get(ctx context.Context, mac string) (*models.Host, error) {
	return m.getFunc(ctx, mac)
}

func (m *mockHostService) List(ctx context.Context, filter repository.HostFilter) ([]*models.Host, int64, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockHostService) Update(ctx context.Context, mac string, req service.UpdateHostRequest) (*models.Host, error) {
	return m.updateFunc(ctx, mac, req)
}

func (m *mockHostService) Delete(context.Context, string) error { return nil }

func (m *mockHostService) AttachTag(context.Context, string, uuid.UUID) (*models.Host, error) {
	return nil, nil
}

func (m *mockHostService) DetachTag(context.Context, string, uuid.UUID) (*models.Host, error) {
	return nil, nil
}

func (m *mockHostService) Export(ctx context.Context) (*service.ExportResult, error) {
	return m.exportFunc(ctx)
}

func (m *mockHostService) Import(ctx context.Context) (*service.ImportResult, error) {
	return m.importFunc(ctx)
}

func TestHostHandler_ListParsesFilters(t *testing.T) {
	scanID := uuid.New()
	h := NewHostHandler(&mockHostService{
		listFunc: func(_ context.Context, filter repository.HostFilter) ([]*models.Host, int64, error) {
			require.NotNil(t, filter.ScanID)
			assert.Equal(t, scanID, *filter.ScanID)
			require.NotNil(t, filter.IsUp)
			assert.True(t, *filter.IsUp)
			assert.True(t, filter.HasOpenPorts)
			assert.Equal(t, "Linux", filter.OSFamily)
			assert.Equal(t, "iot", filter.TagName)
			assert.Equal(t, "camera", filter.Search)
			return []*models.Host{}, 0, nil
		},
	})

	url := "/?scan_id=" + scanID.String() + "&is_up=true&has_open_ports=true&os_family=Linux&tag=iot&search=camera"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHostHandler_ListRejectsBadScanID(t *testing.T) {
	h := NewHostHandler(&mockHostService{})

	req := httptest.NewRequest(http.MethodGet, "/?scan_id=nope", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHostHandler_Get(t *testing.T) {
	h := NewHostHandler(&mockHostService{
		getFunc: func(_ context.Context, mac string) (*models.Host, error) {
			if mac != "AA:BB:CC:DD:EE:01" {
				return nil, apierrors.NewNotFoundError("Host")
			}
			return &models.Host{MACAddress: mac, IPAddress: "192.168.1.10"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/AA:BB:CC:DD:EE:01", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.Host `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "192.168.1.10", envelope.Data.IPAddress)

	req = httptest.NewRequest(http.MethodGet, "/AA:BB:CC:DD:EE:99", nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHostHandler_UpdateValidatesURL(t *testing.T) {
	h := NewHostHandler(&mockHostService{
		updateFunc: func(_ context.Context, mac string, req service.UpdateHostRequest) (*models.Host, error) {
			return &models.Host{MACAddress: mac, FirmwareURL: req.FirmwareURL}, nil
		},
	})

	body := bytes.NewBufferString(`{"firmware_url":"not a url"}`)
	req := httptest.NewRequest(http.MethodPatch, "/AA:BB:CC:DD:EE:01", body)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = bytes.NewBufferString(`{"firmware_url":"http://fw.example.com/image.bin"}`)
	req = httptest.NewRequest(http.MethodPatch, "/AA:BB:CC:DD:EE:01", body)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHostHandler_Export(t *testing.T) {
	h := NewHostHandler(&mockHostService{
		exportFunc: func(context.Context) (*service.ExportResult, error) {
			return &service.ExportResult{Exported: 7, Path: "/var/lib/netscout/devices"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/export", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"exported":7`)
}

func TestHostHandler_ImportMissingFile(t *testing.T) {
	h := NewHostHandler(&mockHostService{
		importFunc: func(context.Context) (*service.ImportResult, error) {
			return nil, apierrors.NewNotFoundError("devices.json")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/import", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
