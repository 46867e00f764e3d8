package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/repository"
)

// HostService defines the interface for device inventory operations.
type HostService interface {
	Get(ctx context.Context, mac string) (*models.Host, error)
	List(ctx context.Context, filter repository.HostFilter) ([]*models.Host, int64, error)
	Update(ctx context.Context, mac string, req UpdateHostRequest) (*models.Host, error)
	Delete(ctx context.Context, mac string) error

	AttachTag(ctx context.Context, mac string, tagID uuid.UUID) (*models.Host, error)
	DetachTag(ctx context.Context, mac string, tagID uuid.UUID) (*models.Host, error)

	Export(ctx context.Context) (*ExportResult, error)
	Import(ctx context.Context) (*ImportResult, error)
}

// UpdateHostRequest carries the user-editable host fields.
type UpdateHostRequest struct {
	IPAddress   *string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	Hostname    *string `json:"hostname,omitempty" validate:"omitempty,max=256"`
	Vendor      *string `json:"vendor,omitempty" validate:"omitempty,max=256"`
	OSName      *string `json:"os_name,omitempty" validate:"omitempty,max=256"`
	OSFamily    *string `json:"os_family,omitempty" validate:"omitempty,max=128"`
	FirmwareURL *string `json:"firmware_url,omitempty" validate:"omitempty,url"`
}

// ExportResult reports a completed inventory export.
type ExportResult struct {
	Exported int    `json:"exported"`
	Path     string `json:"path"`
}

// ImportResult reports a completed inventory import.
type ImportResult struct {
	Imported int `json:"imported"`
}

type hostService struct {
	hosts      repository.HostRepository
	tags       repository.TagRepository
	devicesDir string
}

// NewHostService creates a new host service. devicesDir is where inventory
// exports are written and imports are read from.
func NewHostService(hosts repository.HostRepository, tags repository.TagRepository, devicesDir string) HostService {
	return &hostService{hosts: hosts, tags: tags, devicesDir: devicesDir}
}

// Get retrieves one host with ports and tags.
func (s *hostService) Get(ctx context.Context, mac string) (*models.Host, error) {
	host, err := s.hosts.GetWithDetails(ctx, mac)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, apierrors.NewNotFoundError("Host")
	}
	return host, nil
}

// List retrieves hosts matching the filter.
func (s *hostService) List(ctx context.Context, filter repository.HostFilter) ([]*models.Host, int64, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > 200 {
		filter.PageSize = 200
	}
	return s.hosts.List(ctx, filter)
}

// Update applies user edits to a host.
func (s *hostService) Update(ctx context.Context, mac string, req UpdateHostRequest) (*models.Host, error) {
	host, err := s.Get(ctx, mac)
	if err != nil {
		return nil, err
	}
	if req.IPAddress != nil {
		host.IPAddress = *req.IPAddress
	}
	if req.Hostname != nil {
		host.Hostname = req.Hostname
	}
	if req.Vendor != nil {
		host.Vendor = req.Vendor
	}
	if req.OSName != nil {
		host.OSName = req.OSName
	}
	if req.OSFamily != nil {
		host.OSFamily = req.OSFamily
	}
	if req.FirmwareURL != nil {
		host.FirmwareURL = req.FirmwareURL
	}
	if err := s.hosts.Update(ctx, host); err != nil {
		return nil, err
	}
	return host, nil
}

// Delete removes a host and everything attached to it.
func (s *hostService) Delete(ctx context.Context, mac string) error {
	if _, err := s.Get(ctx, mac); err != nil {
		return err
	}
	return s.hosts.Delete(ctx, mac)
}

// AttachTag adds a tag to a host and returns the refreshed host.
func (s *hostService) AttachTag(ctx context.Context, mac string, tagID uuid.UUID) (*models.Host, error) {
	if _, err := s.Get(ctx, mac); err != nil {
		return nil, err
	}
	tag, err := s.tags.GetByID(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, apierrors.NewNotFoundError("Tag")
	}
	if err := s.tags.AttachToHost(ctx, mac, tagID); err != nil {
		return nil, err
	}
	return s.Get(ctx, mac)
}

// DetachTag removes a tag from a host and returns the refreshed host.
func (s *hostService) DetachTag(ctx context.Context, mac string, tagID uuid.UUID) (*models.Host, error) {
	if _, err := s.Get(ctx, mac); err != nil {
		return nil, err
	}
	if err := s.tags.DetachFromHost(ctx, mac, tagID); err != nil {
		return nil, apierrors.NewNotFoundError("Tag association")
	}
	return s.Get(ctx, mac)
}

// exportFileName renders a host's per-device export file name.
func exportFileName(mac string) string {
	return strings.ReplaceAll(mac, ":", "-") + ".json"
}

// Export writes every host as one JSON file per device, plus a combined
// devices.json, into the devices directory.
func (s *hostService) Export(ctx context.Context) (*ExportResult, error) {
	hosts, err := s.hosts.ListAllWithDetails(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.devicesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create devices dir: %w", err)
	}

	for _, h := range hosts {
		data, err := json.MarshalIndent(h, "", "  ")
		if err != nil {
			return nil, err
		}
		path := filepath.Join(s.devicesDir, exportFileName(h.MACAddress))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write device file: %w", err)
		}
	}

	combined, err := json.MarshalIndent(hosts, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.devicesDir, "devices.json"), combined, 0o644); err != nil {
		return nil, fmt.Errorf("write devices.json: %w", err)
	}

	return &ExportResult{Exported: len(hosts), Path: s.devicesDir}, nil
}

// Import reads devices.json from the devices directory and merges each
// record into the inventory. Null fields never overwrite existing values.
func (s *hostService) Import(ctx context.Context) (*ImportResult, error) {
	data, err := os.ReadFile(filepath.Join(s.devicesDir, "devices.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.NewNotFoundError("devices.json")
		}
		return nil, err
	}

	var hosts []*models.Host
	if err := json.Unmarshal(data, &hosts); err != nil {
		return nil, apierrors.ErrBadRequest.WithMessage("devices.json is not valid JSON")
	}

	imported := 0
	for _, h := range hosts {
		if h.MACAddress == "" {
			continue
		}
		if err := s.hosts.UpsertImport(ctx, h); err != nil {
			return nil, err
		}
		imported++
	}
	return &ImportResult{Imported: imported}, nil
}

// Compile-time check to ensure hostService implements HostService.
var _ HostService = (*hostService)(nil)
