// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/scheduler"
)

// ScanService defines the interface for scan job operations.
type ScanService interface {
	Create(ctx context.Context, req CreateScanRequest) (*models.Scan, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Scan, error)
	List(ctx context.Context, filter repository.ScanFilter) ([]*models.Scan, int64, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateScanRequest) (*models.Scan, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) (*models.Scan, error)
	Logs(ctx context.Context, id uuid.UUID) ([]*models.ScanLog, error)
}

// CreateScanRequest is the request for starting a new scan.
type CreateScanRequest struct {
	Target      string  `json:"target" validate:"required,min=1,max=512"`
	Name        *string `json:"name,omitempty" validate:"omitempty,max=256"`
	Description *string `json:"description,omitempty"`
}

// UpdateScanRequest is the request for editing scan metadata.
type UpdateScanRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=256"`
	Description *string `json:"description,omitempty"`
}

type scanService struct {
	scans repository.ScanRepository
	sched *scheduler.Scheduler
}

// NewScanService creates a new scan service.
func NewScanService(scans repository.ScanRepository, sched *scheduler.Scheduler) ScanService {
	return &scanService{scans: scans, sched: sched}
}

// inferScanType classifies the target expression.
func inferScanType(target string) models.ScanType {
	switch {
	case strings.Contains(target, "/"):
		return models.ScanSubnet
	case strings.Contains(target, "-"):
		return models.ScanRange
	case strings.Contains(target, ","):
		return models.ScanCustom
	default:
		return models.ScanSingleHost
	}
}

// Create records a new scan and enqueues it for the worker.
func (s *scanService) Create(ctx context.Context, req CreateScanRequest) (*models.Scan, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return nil, apierrors.NewValidationError("target", "target must not be empty")
	}

	name := req.Name
	if name == nil {
		n := fmt.Sprintf("Scan %s", target)
		name = &n
	}

	scan := &models.Scan{
		Target:      target,
		ScanType:    inferScanType(target),
		Status:      models.ScanPending,
		Name:        name,
		Description: req.Description,
	}
	if err := s.scans.Create(ctx, scan); err != nil {
		return nil, err
	}
	if err := s.sched.Enqueue(ctx, scheduler.KindScan, scan.ID.String()); err != nil {
		return nil, err
	}
	return scan, nil
}

// Get retrieves one scan.
func (s *scanService) Get(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	scan, err := s.scans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, apierrors.NewNotFoundError("Scan")
	}
	return scan, nil
}

// List retrieves scans matching the filter.
func (s *scanService) List(ctx context.Context, filter repository.ScanFilter) ([]*models.Scan, int64, error) {
	return s.scans.List(ctx, filter)
}

// Update edits scan metadata.
func (s *scanService) Update(ctx context.Context, id uuid.UUID, req UpdateScanRequest) (*models.Scan, error) {
	scan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		scan.Name = req.Name
	}
	if req.Description != nil {
		scan.Description = req.Description
	}
	if err := s.scans.Update(ctx, scan); err != nil {
		return nil, err
	}
	return scan, nil
}

// Delete removes a scan. Running scans must be cancelled first.
func (s *scanService) Delete(ctx context.Context, id uuid.UUID) error {
	scan, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if scan.Status == models.ScanRunning {
		return apierrors.ErrBadRequest.WithMessage("Cannot delete a running scan; cancel it first")
	}
	return s.scans.Delete(ctx, id)
}

// Cancel cancels a pending or running scan. The status is persisted
// immediately; a worker already running the scan acknowledges the cancel
// flag at its next progress checkpoint.
func (s *scanService) Cancel(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	scan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan.Status != models.ScanPending && scan.Status != models.ScanRunning {
		return nil, apierrors.ErrBadRequest.WithMessage(
			fmt.Sprintf("Cannot cancel a scan in status %s", scan.Status))
	}
	if err := s.scans.SetStatus(ctx, id, models.ScanCancelled); err != nil {
		return nil, err
	}
	if err := s.sched.Cancel(ctx, scheduler.KindScan, id.String()); err != nil {
		return nil, err
	}
	scan.Status = models.ScanCancelled
	return scan, nil
}

// Logs retrieves a scan's audit log.
func (s *scanService) Logs(ctx context.Context, id uuid.UUID) ([]*models.ScanLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.scans.ListLogs(ctx, id)
}

// Compile-time check to ensure scanService implements ScanService.
var _ ScanService = (*scanService)(nil)
