package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/repository"
)

// ScanExport bundles a scan with every host (and its ports and tags) it
// discovered, ready for download formatting.
type ScanExport struct {
	Scan  *models.Scan
	Hosts []*models.Host
}

// ExportService assembles downloadable scan and inventory snapshots.
type ExportService interface {
	Scan(ctx context.Context, id uuid.UUID) (*ScanExport, error)
	Hosts(ctx context.Context) ([]*models.Host, error)
}

type exportService struct {
	scans repository.ScanRepository
	hosts repository.HostRepository
}

// NewExportService creates a new export service.
func NewExportService(scans repository.ScanRepository, hosts repository.HostRepository) ExportService {
	return &exportService{scans: scans, hosts: hosts}
}

// Scan loads one scan and all hosts it discovered.
func (s *exportService) Scan(ctx context.Context, id uuid.UUID) (*ScanExport, error) {
	scan, err := s.scans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, apierrors.NewNotFoundError("Scan")
	}

	hosts, err := s.hosts.ListByScanWithDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ScanExport{Scan: scan, Hosts: hosts}, nil
}

// Hosts loads the full inventory with ports and tags.
func (s *exportService) Hosts(ctx context.Context) ([]*models.Host, error) {
	return s.hosts.ListAllWithDetails(ctx)
}

// Compile-time check to ensure exportService implements ExportService.
var _ ExportService = (*exportService)(nil)
