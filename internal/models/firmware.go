package models

import (
	"time"

	"github.com/google/uuid"
)

// FirmwareStatus represents the state of a firmware analysis job. Statuses
// advance monotonically through the declared order.
type FirmwareStatus string

const (
	FirmwarePending     FirmwareStatus = "pending"
	FirmwareDownloading FirmwareStatus = "downloading"
	FirmwareDownloaded  FirmwareStatus = "downloaded"
	FirmwareEmbaQueued  FirmwareStatus = "emba_queued"
	FirmwareEmbaRunning FirmwareStatus = "emba_running"
	FirmwareEmbaDone    FirmwareStatus = "emba_done"
	FirmwareTriaging    FirmwareStatus = "triaging"
	FirmwareCompleted   FirmwareStatus = "completed"
	FirmwareFailed      FirmwareStatus = "failed"
	FirmwareCancelled   FirmwareStatus = "cancelled"
)

// Terminal returns true once an analysis can no longer change state.
func (s FirmwareStatus) Terminal() bool {
	switch s {
	case FirmwareCompleted, FirmwareFailed, FirmwareCancelled:
		return true
	default:
		return false
	}
}

// ActiveFirmwareStatuses are the states that block a new analysis for the
// same host. At most one analysis per host may be in any of these.
var ActiveFirmwareStatuses = []FirmwareStatus{
	FirmwarePending,
	FirmwareDownloading,
	FirmwareDownloaded,
	FirmwareEmbaQueued,
	FirmwareEmbaRunning,
	FirmwareEmbaDone,
	FirmwareTriaging,
}

// FirmwareSummary aggregates firmware analysis results across the fleet.
type FirmwareSummary struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`

	AvgRiskScore *float64 `json:"avg_risk_score,omitempty"`
	MaxRiskScore *float64 `json:"max_risk_score,omitempty"`

	TotalCritical int64 `json:"total_critical"`
	TotalHigh     int64 `json:"total_high"`

	HostsWithFirmwareURL int64 `json:"hosts_with_firmware_url"`
	HostsAnalysed        int64 `json:"hosts_analysed"`
}

// FirmwareAnalysis tracks a firmware run (download, EMBA, AI triage) for a device.
type FirmwareAnalysis struct {
	ID      uuid.UUID      `json:"id" db:"id"`
	HostMAC string         `json:"host_mac" db:"host_mac"`
	Status  FirmwareStatus `json:"status" db:"status"`

	// Pipeline progress (stages 0-3)
	CurrentStage int     `json:"current_stage" db:"current_stage"`
	TotalStages  int     `json:"total_stages" db:"total_stages"`
	StageLabel   *string `json:"stage_label,omitempty" db:"stage_label"`

	// Stage A: download
	FwURL       *string `json:"fw_url,omitempty" db:"fw_url"`
	FwPath      *string `json:"fw_path,omitempty" db:"fw_path"`
	FwHash      *string `json:"fw_hash,omitempty" db:"fw_hash"`
	FwSizeBytes *int64  `json:"fw_size_bytes,omitempty" db:"fw_size_bytes"`

	// Stage B: EMBA
	EmbaLogDir *string `json:"emba_log_dir,omitempty" db:"emba_log_dir"`

	// Stage C: AI triage
	RiskReport    *string  `json:"risk_report,omitempty" db:"risk_report"`
	RiskScore     *float64 `json:"risk_score,omitempty" db:"risk_score"`
	FindingsCount *int     `json:"findings_count,omitempty" db:"findings_count"`
	CriticalCount *int     `json:"critical_count,omitempty" db:"critical_count"`
	HighCount     *int     `json:"high_count,omitempty" db:"high_count"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
}
