// Package models defines the domain types shared by repositories, services, and handlers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanStatus represents the lifecycle state of a scan job.
type ScanStatus string

const (
	ScanPending   ScanStatus = "pending"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanCancelled ScanStatus = "cancelled"
)

// Terminal returns true once a scan can no longer change state.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanCompleted, ScanFailed, ScanCancelled:
		return true
	default:
		return false
	}
}

// ScanType classifies the target expression of a scan.
type ScanType string

const (
	ScanSingleHost ScanType = "single_host"
	ScanSubnet     ScanType = "subnet"
	ScanRange      ScanType = "range"
	ScanCustom     ScanType = "custom"
)

// Valid returns true if the scan type is one of the known kinds.
func (t ScanType) Valid() bool {
	switch t {
	case ScanSingleHost, ScanSubnet, ScanRange, ScanCustom:
		return true
	default:
		return false
	}
}

// Scan is one network-discovery job and its pipeline progress.
type Scan struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Target      string     `json:"target" db:"target"`
	ScanType    ScanType   `json:"scan_type" db:"scan_type"`
	Status      ScanStatus `json:"status" db:"status"`
	Name        *string    `json:"name,omitempty" db:"name"`
	Description *string    `json:"description,omitempty" db:"description"`

	// Pipeline progress (stages 0-4)
	CurrentStage int     `json:"current_stage" db:"current_stage"`
	TotalStages  int     `json:"total_stages" db:"total_stages"`
	StageLabel   *string `json:"stage_label,omitempty" db:"stage_label"`

	// Result counters
	HostsDiscovered int `json:"hosts_discovered" db:"hosts_discovered"`
	LiveHosts       int `json:"live_hosts" db:"live_hosts"`
	OpenPortsFound  int `json:"open_ports_found" db:"open_ports_found"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
}

// ScanLog is an append-only per-scan audit entry.
type ScanLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ScanID    uuid.UUID `json:"scan_id" db:"scan_id"`
	Stage     int       `json:"stage" db:"stage"`
	Level     string    `json:"level" db:"level"` // info, warning, error
	Message   string    `json:"message" db:"message"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
