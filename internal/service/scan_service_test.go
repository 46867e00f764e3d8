package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
)

func TestInferScanType(t *testing.T) {
	tests := []struct {
		target string
		want   models.ScanType
	}{
		{"192.168.1.0/24", models.ScanSubnet},
		{"192.168.1.1-50", models.ScanRange},
		{"192.168.1.1,192.168.1.2", models.ScanCustom},
		{"192.168.1.10", models.ScanSingleHost},
		{"printer.lan", models.ScanSingleHost},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inferScanType(tt.target), tt.target)
	}
}

func TestCreateScanDefaultsAndEnqueues(t *testing.T) {
	repo := newMockScanRepo()
	sched, rdb := newTestScheduler(t)
	svc := NewScanService(repo, sched)
	ctx := context.Background()

	scan, err := svc.Create(ctx, CreateScanRequest{Target: " 192.168.1.0/24 "})
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.0/24", scan.Target)
	assert.Equal(t, models.ScanSubnet, scan.ScanType)
	assert.Equal(t, models.ScanPending, scan.Status)
	require.NotNil(t, scan.Name)
	assert.Equal(t, "Scan 192.168.1.0/24", *scan.Name)

	queued, err := rdb.LRange(ctx, "soc:scan_queue", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{scan.ID.String()}, queued)
}

func TestCreateScanRejectsEmptyTarget(t *testing.T) {
	repo := newMockScanRepo()
	sched, _ := newTestScheduler(t)
	svc := NewScanService(repo, sched)

	_, err := svc.Create(context.Background(), CreateScanRequest{Target: "   "})
	require.Error(t, err)
	assert.Equal(t, 400, apierrors.AsAPIError(err).StatusCode)
}

func TestCancelScanPendingSetsFlag(t *testing.T) {
	repo := newMockScanRepo()
	sched, rdb := newTestScheduler(t)
	svc := NewScanService(repo, sched)
	ctx := context.Background()

	scan := &models.Scan{Target: "10.0.0.0/24", Status: models.ScanPending}
	require.NoError(t, repo.Create(ctx, scan))

	got, err := svc.Cancel(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanCancelled, got.Status)

	// The status is persisted immediately, not just flagged for the worker.
	stored, err := repo.GetByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanCancelled, stored.Status)

	member, err := rdb.SIsMember(ctx, "soc:scan_cancel", scan.ID.String()).Result()
	require.NoError(t, err)
	assert.True(t, member)
}

func TestCancelScanTerminalRejected(t *testing.T) {
	repo := newMockScanRepo()
	sched, _ := newTestScheduler(t)
	svc := NewScanService(repo, sched)
	ctx := context.Background()

	scan := &models.Scan{Target: "10.0.0.0/24", Status: models.ScanCompleted}
	require.NoError(t, repo.Create(ctx, scan))

	_, err := svc.Cancel(ctx, scan.ID)
	require.Error(t, err)
	assert.Equal(t, 400, apierrors.AsAPIError(err).StatusCode)
}

func TestDeleteRunningScanRejected(t *testing.T) {
	repo := newMockScanRepo()
	sched, _ := newTestScheduler(t)
	svc := NewScanService(repo, sched)
	ctx := context.Background()

	scan := &models.Scan{Target: "10.0.0.0/24", Status: models.ScanRunning}
	require.NoError(t, repo.Create(ctx, scan))

	err := svc.Delete(ctx, scan.ID)
	require.Error(t, err)
	assert.Equal(t, 400, apierrors.AsAPIError(err).StatusCode)
}

func TestGetScanNotFound(t *testing.T) {
	repo := newMockScanRepo()
	sched, _ := newTestScheduler(t)
	svc := NewScanService(repo, sched)

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, 404, apierrors.AsAPIError(err).StatusCode)
}
