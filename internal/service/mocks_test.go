package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sentinelops/netscout/internal/models"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/scheduler"
)

// The mocks embed their interface so only the methods a test exercises
// need implementations; calling anything else panics loudly.

type mockScanRepo struct {
	repository.ScanRepository
	mu    sync.Mutex
	scans map[uuid.UUID]*models.Scan
	logs  map[uuid.UUID][]*models.ScanLog
}

func newMockScanRepo() *mockScanRepo {
	return &mockScanRepo{
		scans: make(map[uuid.UUID]*models.Scan),
		logs:  make(map[uuid.UUID][]*models.ScanLog),
	}
}

func (m *mockScanRepo) Create(_ context.Context, s *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.scans[s.ID] = s
	return nil
}

func (m *mockScanRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans[id], nil
}

func (m *mockScanRepo) SetStatus(_ context.Context, id uuid.UUID, status models.ScanStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[id].Status = status
	return nil
}

func (m *mockScanRepo) Update(_ context.Context, s *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[s.ID] = s
	return nil
}

func (m *mockScanRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scans, id)
	return nil
}

func (m *mockScanRepo) ListLogs(_ context.Context, id uuid.UUID) ([]*models.ScanLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs[id], nil
}

type mockHostRepo struct {
	repository.HostRepository
	mu          sync.Mutex
	hosts       map[string]*models.Host
	all         []*models.Host
	imported    []*models.Host
	fwStatuses  map[string]models.FirmwareStatus
	fwURLs      map[string]string
	updateCalls int
}

func newMockHostRepo() *mockHostRepo {
	return &mockHostRepo{
		hosts:      make(map[string]*models.Host),
		fwStatuses: make(map[string]models.FirmwareStatus),
		fwURLs:     make(map[string]string),
	}
}

func (m *mockHostRepo) GetByMAC(_ context.Context, mac string) (*models.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hosts[mac], nil
}

func (m *mockHostRepo) GetWithDetails(ctx context.Context, mac string) (*models.Host, error) {
	return m.GetByMAC(ctx, mac)
}

func (m *mockHostRepo) Update(_ context.Context, h *models.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[h.MACAddress] = h
	m.updateCalls++
	return nil
}

func (m *mockHostRepo) ListAllWithDetails(context.Context) ([]*models.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all, nil
}

func (m *mockHostRepo) UpsertImport(_ context.Context, h *models.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imported = append(m.imported, h)
	return nil
}

func (m *mockHostRepo) SetFirmwareStatus(_ context.Context, mac string, status models.FirmwareStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fwStatuses[mac] = status
	return nil
}

func (m *mockHostRepo) SetFirmwareURL(_ context.Context, mac, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fwURLs[mac] = url
	return nil
}

type mockFirmwareRepo struct {
	repository.FirmwareRepository
	mu       sync.Mutex
	analyses map[uuid.UUID]*models.FirmwareAnalysis
	active   map[string]*models.FirmwareAnalysis
}

func newMockFirmwareRepo() *mockFirmwareRepo {
	return &mockFirmwareRepo{
		analyses: make(map[uuid.UUID]*models.FirmwareAnalysis),
		active:   make(map[string]*models.FirmwareAnalysis),
	}
}

func (m *mockFirmwareRepo) Create(_ context.Context, fa *models.FirmwareAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fa.ID == uuid.Nil {
		fa.ID = uuid.New()
	}
	m.analyses[fa.ID] = fa
	return nil
}

func (m *mockFirmwareRepo) GetByID(_ context.Context, id uuid.UUID) (*models.FirmwareAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyses[id], nil
}

func (m *mockFirmwareRepo) GetActiveByHost(_ context.Context, mac string) (*models.FirmwareAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[mac], nil
}

func (m *mockFirmwareRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.analyses, id)
	return nil
}

type mockTagRepo struct {
	repository.TagRepository
	mu       sync.Mutex
	tags     map[uuid.UUID]*models.Tag
	byName   map[string]*models.Tag
	attached map[string][]uuid.UUID
}

func newMockTagRepo() *mockTagRepo {
	return &mockTagRepo{
		tags:     make(map[uuid.UUID]*models.Tag),
		byName:   make(map[string]*models.Tag),
		attached: make(map[string][]uuid.UUID),
	}
}

func (m *mockTagRepo) Create(_ context.Context, t *models.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.tags[t.ID] = t
	m.byName[t.Name] = t
	return nil
}

func (m *mockTagRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags[id], nil
}

func (m *mockTagRepo) GetByName(_ context.Context, name string) (*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[name], nil
}

func (m *mockTagRepo) AttachToHost(_ context.Context, mac string, tagID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached[mac] = append(m.attached[mac], tagID)
	return nil
}

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return scheduler.New(rdb, slog.Default()), rdb
}
