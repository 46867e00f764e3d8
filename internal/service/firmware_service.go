package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/scheduler"
)

// FirmwareService defines the interface for firmware analysis operations.
type FirmwareService interface {
	Start(ctx context.Context, mac string, req StartAnalysisRequest) (*models.FirmwareAnalysis, error)
	StartBatch(ctx context.Context, req BatchAnalysisRequest) (*BatchAnalysisResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.FirmwareAnalysis, error)
	List(ctx context.Context, filter repository.FirmwareFilter) ([]*models.FirmwareAnalysis, int64, error)
	Summary(ctx context.Context) (*models.FirmwareSummary, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.FirmwareAnalysis, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Report(ctx context.Context, id uuid.UUID) (string, error)
}

// StartAnalysisRequest optionally overrides the host's firmware URL.
type StartAnalysisRequest struct {
	FirmwareURL *string `json:"firmware_url,omitempty" validate:"omitempty,url"`
}

// BatchAnalysisRequest starts analyses for several hosts at once.
type BatchAnalysisRequest struct {
	MACs []string `json:"macs" validate:"required,min=1,max=100,dive,mac"`
}

// BatchSkip explains why one host in a batch was not started.
type BatchSkip struct {
	MAC    string `json:"mac"`
	Reason string `json:"reason"`
}

// BatchAnalysisResult summarizes a batch start.
type BatchAnalysisResult struct {
	Started []*models.FirmwareAnalysis `json:"started"`
	Skipped []BatchSkip                `json:"skipped"`
}

type firmwareService struct {
	firmwares repository.FirmwareRepository
	hosts     repository.HostRepository
	sched     *scheduler.Scheduler
}

// NewFirmwareService creates a new firmware service.
func NewFirmwareService(firmwares repository.FirmwareRepository, hosts repository.HostRepository, sched *scheduler.Scheduler) FirmwareService {
	return &firmwareService{firmwares: firmwares, hosts: hosts, sched: sched}
}

// Start creates and enqueues an analysis for one host. A host may have at
// most one active analysis at a time.
func (s *firmwareService) Start(ctx context.Context, mac string, req StartAnalysisRequest) (*models.FirmwareAnalysis, error) {
	host, err := s.hosts.GetByMAC(ctx, mac)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, apierrors.NewNotFoundError("Host")
	}

	fwURL := ""
	if req.FirmwareURL != nil {
		fwURL = *req.FirmwareURL
	} else if host.FirmwareURL != nil {
		fwURL = *host.FirmwareURL
	}
	if fwURL == "" {
		return nil, apierrors.ErrBadRequest.WithMessage("Host has no firmware URL; provide one in the request")
	}

	active, err := s.firmwares.GetActiveByHost(ctx, mac)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apierrors.NewConflictError(fmt.Sprintf(
			"Analysis %s is already in progress for this host (status: %s)", active.ID, active.Status))
	}

	if host.FirmwareURL == nil || *host.FirmwareURL != fwURL {
		if err := s.hosts.SetFirmwareURL(ctx, mac, fwURL); err != nil {
			return nil, err
		}
	}
	if err := s.hosts.SetFirmwareStatus(ctx, mac, models.FirmwarePending); err != nil {
		return nil, err
	}

	fa := &models.FirmwareAnalysis{
		HostMAC: mac,
		Status:  models.FirmwarePending,
		FwURL:   &fwURL,
	}
	if err := s.firmwares.Create(ctx, fa); err != nil {
		return nil, err
	}
	if err := s.sched.Enqueue(ctx, scheduler.KindFirmware, fa.ID.String()); err != nil {
		return nil, err
	}
	return fa, nil
}

// StartBatch starts analyses for every MAC that can accept one, collecting
// per-host skip reasons instead of failing the whole batch.
func (s *firmwareService) StartBatch(ctx context.Context, req BatchAnalysisRequest) (*BatchAnalysisResult, error) {
	result := &BatchAnalysisResult{}
	for _, mac := range req.MACs {
		fa, err := s.Start(ctx, mac, StartAnalysisRequest{})
		if err != nil {
			result.Skipped = append(result.Skipped, BatchSkip{MAC: mac, Reason: err.Error()})
			continue
		}
		result.Started = append(result.Started, fa)
	}
	return result, nil
}

// Get retrieves one analysis.
func (s *firmwareService) Get(ctx context.Context, id uuid.UUID) (*models.FirmwareAnalysis, error) {
	fa, err := s.firmwares.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if fa == nil {
		return nil, apierrors.NewNotFoundError("Firmware analysis")
	}
	return fa, nil
}

// List retrieves analyses matching the filter.
func (s *firmwareService) List(ctx context.Context, filter repository.FirmwareFilter) ([]*models.FirmwareAnalysis, int64, error) {
	return s.firmwares.List(ctx, filter)
}

// Summary computes fleet-wide firmware aggregates.
func (s *firmwareService) Summary(ctx context.Context) (*models.FirmwareSummary, error) {
	return s.firmwares.Summary(ctx)
}

// Cancel requests cancellation of an analysis that has not finished.
func (s *firmwareService) Cancel(ctx context.Context, id uuid.UUID) (*models.FirmwareAnalysis, error) {
	fa, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if fa.Status == models.FirmwareCompleted || fa.Status == models.FirmwareCancelled {
		return nil, apierrors.ErrBadRequest.WithMessage(
			fmt.Sprintf("Cannot cancel an analysis in status %s", fa.Status))
	}
	if err := s.sched.Cancel(ctx, scheduler.KindFirmware, id.String()); err != nil {
		return nil, err
	}
	return fa, nil
}

// Delete removes an analysis record.
func (s *firmwareService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.firmwares.Delete(ctx, id)
}

// Report returns the markdown triage report for a completed analysis.
func (s *firmwareService) Report(ctx context.Context, id uuid.UUID) (string, error) {
	fa, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if fa.RiskReport == nil || *fa.RiskReport == "" {
		return "", apierrors.NewNotFoundError("Triage report")
	}
	return *fa.RiskReport, nil
}

// Compile-time check to ensure firmwareService implements FirmwareService.
var _ FirmwareService = (*firmwareService)(nil)
