package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelops/netscout/internal/models"
)

const firmwareColumns = `
	id, host_mac, status, current_stage, total_stages, stage_label,
	fw_url, fw_path, fw_hash, fw_size_bytes, emba_log_dir,
	risk_report, risk_score, findings_count, critical_count, high_count,
	created_at, started_at, completed_at, error_message`

// FirmwareFilter narrows List results.
type FirmwareFilter struct {
	HostMAC  string
	Status   models.FirmwareStatus
	Page     int
	PageSize int
}

// FirmwareRepository defines the interface for firmware analysis job data.
type FirmwareRepository interface {
	Create(ctx context.Context, fa *models.FirmwareAnalysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FirmwareAnalysis, error)
	GetActiveByHost(ctx context.Context, mac string) (*models.FirmwareAnalysis, error)
	List(ctx context.Context, filter FirmwareFilter) ([]*models.FirmwareAnalysis, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	SetStatus(ctx context.Context, id uuid.UUID, status models.FirmwareStatus) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateStage(ctx context.Context, id uuid.UUID, stage int, label string, status models.FirmwareStatus) error
	SetDownloadResult(ctx context.Context, id uuid.UUID, fwPath, fwHash string, sizeBytes int64) error
	SetEmbaResult(ctx context.Context, id uuid.UUID, embaLogDir string) error
	Complete(ctx context.Context, id uuid.UUID, report string, score *float64, findings, critical, high int) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error

	Summary(ctx context.Context) (*models.FirmwareSummary, error)
}

type firmwareRepo struct {
	pool *pgxpool.Pool
}

// NewFirmwareRepository creates a new firmware analysis repository.
func NewFirmwareRepository(pool *pgxpool.Pool) FirmwareRepository {
	return &firmwareRepo{pool: pool}
}

// Create inserts a new firmware analysis job.
func (r *firmwareRepo) Create(ctx context.Context, fa *models.FirmwareAnalysis) error {
	query := `
		INSERT INTO firmware_analyses (id, host_mac, status, total_stages, fw_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	if fa.ID == uuid.Nil {
		fa.ID = uuid.New()
	}
	if fa.Status == "" {
		fa.Status = models.FirmwarePending
	}
	if fa.TotalStages == 0 {
		fa.TotalStages = 3
	}
	return r.pool.QueryRow(ctx, query, fa.ID, fa.HostMAC, fa.Status, fa.TotalStages, fa.FwURL).
		Scan(&fa.CreatedAt)
}

func scanFirmwareRow(row pgx.Row) (*models.FirmwareAnalysis, error) {
	var fa models.FirmwareAnalysis
	err := row.Scan(
		&fa.ID,
		&fa.HostMAC,
		&fa.Status,
		&fa.CurrentStage,
		&fa.TotalStages,
		&fa.StageLabel,
		&fa.FwURL,
		&fa.FwPath,
		&fa.FwHash,
		&fa.FwSizeBytes,
		&fa.EmbaLogDir,
		&fa.RiskReport,
		&fa.RiskScore,
		&fa.FindingsCount,
		&fa.CriticalCount,
		&fa.HighCount,
		&fa.CreatedAt,
		&fa.StartedAt,
		&fa.CompletedAt,
		&fa.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fa, nil
}

// GetByID retrieves a firmware analysis by its UUID.
func (r *firmwareRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.FirmwareAnalysis, error) {
	query := `SELECT` + firmwareColumns + ` FROM firmware_analyses WHERE id = $1`
	return scanFirmwareRow(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByHost retrieves the host's in-flight analysis, if any. At most
// one analysis per host may be active at a time.
func (r *firmwareRepo) GetActiveByHost(ctx context.Context, mac string) (*models.FirmwareAnalysis, error) {
	query := `SELECT` + firmwareColumns + `
		FROM firmware_analyses
		WHERE host_mac = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`

	active := make([]string, len(models.ActiveFirmwareStatuses))
	for i, s := range models.ActiveFirmwareStatuses {
		active[i] = string(s)
	}
	return scanFirmwareRow(r.pool.QueryRow(ctx, query, mac, active))
}

// List retrieves firmware analyses matching the filter, newest first.
func (r *firmwareRepo) List(ctx context.Context, filter FirmwareFilter) ([]*models.FirmwareAnalysis, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	where := ` WHERE 1=1`
	var args []any
	if filter.HostMAC != "" {
		args = append(args, filter.HostMAC)
		where += fmt.Sprintf(` AND host_mac = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM firmware_analyses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + firmwareColumns + ` FROM firmware_analyses` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`,
			filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var analyses []*models.FirmwareAnalysis
	for rows.Next() {
		fa, err := scanFirmwareRow(rows)
		if err != nil {
			return nil, 0, err
		}
		analyses = append(analyses, fa)
	}
	return analyses, total, rows.Err()
}

// Delete removes a firmware analysis record.
func (r *firmwareRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM firmware_analyses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetStatus updates only the status column.
func (r *firmwareRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.FirmwareStatus) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE firmware_analyses SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkRunning stamps started_at as the job begins stage A.
func (r *firmwareRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE firmware_analyses SET status = $2, started_at = $3, current_stage = 0 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.FirmwareDownloading, time.Now().UTC())
	return err
}

// UpdateStage records pipeline progress together with the matching status.
func (r *firmwareRepo) UpdateStage(ctx context.Context, id uuid.UUID, stage int, label string, status models.FirmwareStatus) error {
	query := `UPDATE firmware_analyses SET current_stage = $2, stage_label = $3, status = $4 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, stage, label, status)
	return err
}

// SetDownloadResult stores stage A output.
func (r *firmwareRepo) SetDownloadResult(ctx context.Context, id uuid.UUID, fwPath, fwHash string, sizeBytes int64) error {
	query := `UPDATE firmware_analyses SET fw_path = $2, fw_hash = $3, fw_size_bytes = $4 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, fwPath, fwHash, sizeBytes)
	return err
}

// SetEmbaResult stores stage B output.
func (r *firmwareRepo) SetEmbaResult(ctx context.Context, id uuid.UUID, embaLogDir string) error {
	query := `UPDATE firmware_analyses SET emba_log_dir = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, embaLogDir)
	return err
}

// Complete stores stage C output and finalizes the job.
func (r *firmwareRepo) Complete(ctx context.Context, id uuid.UUID, report string, score *float64, findings, critical, high int) error {
	query := `
		UPDATE firmware_analyses
		SET status = $2, completed_at = $3, current_stage = 3, stage_label = 'Completed',
		    risk_report = $4, risk_score = $5,
		    findings_count = $6, critical_count = $7, high_count = $8
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.FirmwareCompleted, time.Now().UTC(),
		report, score, findings, critical, high)
	return err
}

// Fail marks an analysis failed with a truncated error message.
func (r *firmwareRepo) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `UPDATE firmware_analyses SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.FirmwareFailed, time.Now().UTC(), errMsg)
	return err
}

// MarkCancelled finalizes an analysis that was cancelled mid-run.
func (r *firmwareRepo) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE firmware_analyses SET status = $2, completed_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.FirmwareCancelled, time.Now().UTC())
	return err
}

// Summary computes fleet-wide firmware analysis aggregates. Risk averages
// and maxima consider completed analyses only and are rounded to one decimal.
func (r *firmwareRepo) Summary(ctx context.Context) (*models.FirmwareSummary, error) {
	var s models.FirmwareSummary
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status NOT IN ('pending', 'completed', 'failed', 'cancelled')),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       AVG(risk_score) FILTER (WHERE status = 'completed'),
		       MAX(risk_score) FILTER (WHERE status = 'completed'),
		       COALESCE(SUM(critical_count) FILTER (WHERE status = 'completed'), 0),
		       COALESCE(SUM(high_count) FILTER (WHERE status = 'completed'), 0),
		       COUNT(DISTINCT host_mac)
		FROM firmware_analyses`).Scan(
		&s.Total, &s.Pending, &s.Running, &s.Completed, &s.Failed,
		&s.AvgRiskScore, &s.MaxRiskScore, &s.TotalCritical, &s.TotalHigh,
		&s.HostsAnalysed,
	)
	if err != nil {
		return nil, err
	}
	if s.AvgRiskScore != nil {
		rounded := math.Round(*s.AvgRiskScore*10) / 10
		s.AvgRiskScore = &rounded
	}
	if s.MaxRiskScore != nil {
		rounded := math.Round(*s.MaxRiskScore*10) / 10
		s.MaxRiskScore = &rounded
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hosts WHERE firmware_url IS NOT NULL`).Scan(&s.HostsWithFirmwareURL)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Compile-time check to ensure firmwareRepo implements FirmwareRepository.
var _ FirmwareRepository = (*firmwareRepo)(nil)
