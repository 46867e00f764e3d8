package service

import (
	"context"

	"github.com/sentinelops/netscout/internal/models"
	"github.com/sentinelops/netscout/internal/repository"
)

// DashboardStats is the aggregate payload behind the dashboard endpoint.
type DashboardStats struct {
	Scans          ScanCounts                 `json:"scans"`
	Hosts          *repository.InventoryStats `json:"hosts"`
	TopServices    []repository.NameCount     `json:"top_services"`
	TopPorts       []repository.PortCount     `json:"top_ports"`
	OSDistribution []repository.NameCount     `json:"os_distribution"`
	RecentScans    []*models.Scan             `json:"recent_scans"`
	Firmware       *models.FirmwareSummary    `json:"firmware"`
}

// ScanCounts breaks scans down by lifecycle state.
type ScanCounts struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// DashboardService assembles the dashboard aggregates.
type DashboardService interface {
	Stats(ctx context.Context) (*DashboardStats, error)
}

type dashboardService struct {
	scans     repository.ScanRepository
	hosts     repository.HostRepository
	firmwares repository.FirmwareRepository
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(scans repository.ScanRepository, hosts repository.HostRepository, firmwares repository.FirmwareRepository) DashboardService {
	return &dashboardService{scans: scans, hosts: hosts, firmwares: firmwares}
}

const (
	topLimit         = 10
	recentScansLimit = 5
)

// Stats gathers every dashboard aggregate in one call.
func (s *dashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	byStatus, err := s.scans.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := ScanCounts{
		Pending:   byStatus[models.ScanPending],
		Running:   byStatus[models.ScanRunning],
		Completed: byStatus[models.ScanCompleted],
		Failed:    byStatus[models.ScanFailed],
		Cancelled: byStatus[models.ScanCancelled],
	}
	for _, n := range byStatus {
		counts.Total += n
	}

	inventory, err := s.hosts.Stats(ctx)
	if err != nil {
		return nil, err
	}
	topServices, err := s.hosts.TopServices(ctx, topLimit)
	if err != nil {
		return nil, err
	}
	topPorts, err := s.hosts.TopPorts(ctx, topLimit)
	if err != nil {
		return nil, err
	}
	osDist, err := s.hosts.OSDistribution(ctx, topLimit)
	if err != nil {
		return nil, err
	}
	recent, err := s.scans.Recent(ctx, recentScansLimit)
	if err != nil {
		return nil, err
	}
	fwSummary, err := s.firmwares.Summary(ctx)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		Scans:          counts,
		Hosts:          inventory,
		TopServices:    topServices,
		TopPorts:       topPorts,
		OSDistribution: osDist,
		RecentScans:    recent,
		Firmware:       fwSummary,
	}, nil
}

// Compile-time check to ensure dashboardService implements DashboardService.
var _ DashboardService = (*dashboardService)(nil)
