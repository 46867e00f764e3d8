package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/service"
)

type mockFirmwareService struct {
	startFunc   func(ctx context.Context, mac string, req service.StartAnalysisRequest) (*models.FirmwareAnalysis, error)
	summaryFunc func(ctx context.Context) (*models.FirmwareSummary, error)
	reportFunc  func(ctx context.Context, id uuid.UUID) (string, error)
}

func (m *mockFirmwareService) Start(ctx context.Context, mac string, req service.StartAnalysisRequest) (*models.FirmwareAnalysis, error) {
	return m.startFunc(ctx, mac, req)
}

func (m *mockFirmwareService) StartBatch(context.Context, service.BatchAnalysisRequest) (*service.BatchAnalysisResult, error) {
	return &service.BatchAnalysisResult{}, nil
}

func (m *mockFirmwareService) Get(context.Context, uuid.UUID) (*models.FirmwareAnalysis, error) {
	return nil, nil
}

func (m *mockFirmwareService) List(context.Context, repository.FirmwareFilter) ([]*models.FirmwareAnalysis, int64, error) {
	return nil, 0, nil
}

func (m *mockFirmwareService) Summary(ctx context.Context) (*models.FirmwareSummary, error) {
	return m.summaryFunc(ctx)
}

func (m *mockFirmwareService) Cancel(context.Context, uuid.UUID) (*models.FirmwareAnalysis, error) {
	return nil, nil
}

func (m *mockFirmwareService) Delete(context.Context, uuid.UUID) error { return nil }

func (m *mockFirmwareService) Report(ctx context.Context, id uuid.UUID) (string, error) {
	return m.reportFunc(ctx, id)
}

func TestFirmwareHandler_Start(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockService    *mockFirmwareService
		expectedStatus int
	}{
		{
			name: "starts analysis",
			body: `{"host_mac":"AA:BB:CC:DD:EE:01","firmware_url":"http://fw.example.com/image.bin"}`,
			mockService: &mockFirmwareService{
				startFunc: func(_ context.Context, mac string, req service.StartAnalysisRequest) (*models.FirmwareAnalysis, error) {
					assert.Equal(t, "AA:BB:CC:DD:EE:01", mac)
					return &models.FirmwareAnalysis{
						ID:      uuid.New(),
						HostMAC: mac,
						Status:  models.FirmwarePending,
						FwURL:   req.FirmwareURL,
					}, nil
				},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "rejects missing host_mac",
			body:           `{"firmware_url":"http://fw.example.com/image.bin"}`,
			mockService:    &mockFirmwareService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "rejects malformed MAC",
			body:           `{"host_mac":"not-a-mac"}`,
			mockService:    &mockFirmwareService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "propagates conflict",
			body: `{"host_mac":"AA:BB:CC:DD:EE:01"}`,
			mockService: &mockFirmwareService{
				startFunc: func(context.Context, string, service.StartAnalysisRequest) (*models.FirmwareAnalysis, error) {
					return nil, apierrors.NewConflictError("Analysis is already in progress for this host")
				},
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFirmwareHandler(tt.mockService)
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			h.Routes().ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestFirmwareHandler_ReportServedAsMarkdown(t *testing.T) {
	h := NewFirmwareHandler(&mockFirmwareService{
		reportFunc: func(context.Context, uuid.UUID) (string, error) {
			return "## Risk Score: 7/10\n\nFindings follow.", nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/"+uuid.NewString()+"/report", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Risk Score: 7/10")
}

func TestFirmwareHandler_Summary(t *testing.T) {
	h := NewFirmwareHandler(&mockFirmwareService{
		summaryFunc: func(context.Context) (*models.FirmwareSummary, error) {
			return &models.FirmwareSummary{Total: 4, Completed: 3}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":4`)
}
