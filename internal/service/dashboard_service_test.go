package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/netscout/internal/models"
	"github.com/sentinelops/netscout/internal/repository"
)

func (m *mockScanRepo) CountByStatus(context.Context) (map[models.ScanStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.ScanStatus]int64)
	for _, s := range m.scans {
		counts[s.Status]++
	}
	return counts, nil
}

func (m *mockScanRepo) Recent(_ context.Context, limit int) ([]*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := make([]*models.Scan, 0, limit)
	for _, s := range m.scans {
		if len(recent) == limit {
			break
		}
		recent = append(recent, s)
	}
	return recent, nil
}

func (m *mockHostRepo) Stats(context.Context) (*repository.InventoryStats, error) {
	return &repository.InventoryStats{TotalHosts: 12, LiveHosts: 9, OpenPorts: 34}, nil
}

func (m *mockHostRepo) TopServices(context.Context, int) ([]repository.NameCount, error) {
	return []repository.NameCount{{Name: "http", Count: 8}, {Name: "ssh", Count: 5}}, nil
}

func (m *mockHostRepo) TopPorts(context.Context, int) ([]repository.PortCount, error) {
	return []repository.PortCount{{Port: 80, Count: 8}}, nil
}

func (m *mockHostRepo) OSDistribution(context.Context, int) ([]repository.NameCount, error) {
	return []repository.NameCount{{Name: "Linux", Count: 7}}, nil
}

func (m *mockFirmwareRepo) Summary(context.Context) (*models.FirmwareSummary, error) {
	return &models.FirmwareSummary{Total: 3, Completed: 2, Failed: 1}, nil
}

func TestDashboardStatsAggregates(t *testing.T) {
	scans := newMockScanRepo()
	ctx := context.Background()
	require.NoError(t, scans.Create(ctx, &models.Scan{Target: "10.0.0.0/24", Status: models.ScanCompleted}))
	require.NoError(t, scans.Create(ctx, &models.Scan{Target: "10.0.1.0/24", Status: models.ScanCompleted}))
	require.NoError(t, scans.Create(ctx, &models.Scan{Target: "10.0.2.0/24", Status: models.ScanRunning}))

	svc := NewDashboardService(scans, newMockHostRepo(), newMockFirmwareRepo())

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Scans.Total)
	assert.Equal(t, int64(2), stats.Scans.Completed)
	assert.Equal(t, int64(1), stats.Scans.Running)

	require.NotNil(t, stats.Hosts)
	assert.Equal(t, int64(12), stats.Hosts.TotalHosts)
	assert.Len(t, stats.TopServices, 2)
	assert.Equal(t, "http", stats.TopServices[0].Name)
	assert.Len(t, stats.RecentScans, 3)

	require.NotNil(t, stats.Firmware)
	assert.Equal(t, int64(3), stats.Firmware.Total)
}
