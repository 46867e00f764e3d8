// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelops/netscout/internal/models"
)

const scanColumns = `
	id, target, scan_type, status, name, description,
	current_stage, total_stages, stage_label,
	hosts_discovered, live_hosts, open_ports_found,
	created_at, started_at, completed_at, error_message`

// ScanFilter narrows List results.
type ScanFilter struct {
	Status   models.ScanStatus
	Search   string
	Page     int
	PageSize int
}

// ScanRepository defines the interface for scan job data operations.
type ScanRepository interface {
	Create(ctx context.Context, scan *models.Scan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Scan, error)
	List(ctx context.Context, filter ScanFilter) ([]*models.Scan, int64, error)
	Recent(ctx context.Context, limit int) ([]*models.Scan, error)
	Update(ctx context.Context, scan *models.Scan) error
	Delete(ctx context.Context, id uuid.UUID) error

	SetStatus(ctx context.Context, id uuid.UUID, status models.ScanStatus) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, stage int, label string) error
	Complete(ctx context.Context, id uuid.UUID, hostsDiscovered, liveHosts, openPorts int) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error

	AddLog(ctx context.Context, log *models.ScanLog) error
	ListLogs(ctx context.Context, scanID uuid.UUID) ([]*models.ScanLog, error)

	CountByStatus(ctx context.Context) (map[models.ScanStatus]int64, error)
}

type scanRepo struct {
	pool *pgxpool.Pool
}

// NewScanRepository creates a new scan repository.
func NewScanRepository(pool *pgxpool.Pool) ScanRepository {
	return &scanRepo{pool: pool}
}

// Create inserts a new scan job.
func (r *scanRepo) Create(ctx context.Context, scan *models.Scan) error {
	query := `
		INSERT INTO scans (id, target, scan_type, status, name, description, total_stages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	if scan.Status == "" {
		scan.Status = models.ScanPending
	}
	if scan.TotalStages == 0 {
		scan.TotalStages = 4
	}

	return r.pool.QueryRow(ctx, query,
		scan.ID,
		scan.Target,
		scan.ScanType,
		scan.Status,
		scan.Name,
		scan.Description,
		scan.TotalStages,
	).Scan(&scan.CreatedAt)
}

func scanScanRow(row pgx.Row) (*models.Scan, error) {
	var s models.Scan
	err := row.Scan(
		&s.ID,
		&s.Target,
		&s.ScanType,
		&s.Status,
		&s.Name,
		&s.Description,
		&s.CurrentStage,
		&s.TotalStages,
		&s.StageLabel,
		&s.HostsDiscovered,
		&s.LiveHosts,
		&s.OpenPortsFound,
		&s.CreatedAt,
		&s.StartedAt,
		&s.CompletedAt,
		&s.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID retrieves a scan by its UUID.
func (r *scanRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	query := `SELECT` + scanColumns + ` FROM scans WHERE id = $1`
	return scanScanRow(r.pool.QueryRow(ctx, query, id))
}

// List retrieves scans matching the filter, newest first, with the total
// matching count for pagination.
func (r *scanRepo) List(ctx context.Context, filter ScanFilter) ([]*models.Scan, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += ` AND status = $1`
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		if len(args) == 1 {
			where += ` AND (target ILIKE $1 OR name ILIKE $1)`
		} else {
			where += ` AND (target ILIKE $2 OR name ILIKE $2)`
		}
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scans`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + scanColumns + ` FROM scans` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`,
			filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var scans []*models.Scan
	for rows.Next() {
		s, err := scanScanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		scans = append(scans, s)
	}
	return scans, total, rows.Err()
}

// Recent retrieves the newest scans for the dashboard.
func (r *scanRepo) Recent(ctx context.Context, limit int) ([]*models.Scan, error) {
	scans, _, err := r.List(ctx, ScanFilter{Page: 1, PageSize: limit})
	return scans, err
}

// Update persists scan metadata edits.
func (r *scanRepo) Update(ctx context.Context, scan *models.Scan) error {
	query := `UPDATE scans SET name = $2, description = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, scan.ID, scan.Name, scan.Description)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a scan and, via cascade, its logs.
func (r *scanRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetStatus updates only the status column.
func (r *scanRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.ScanStatus) error {
	result, err := r.pool.Exec(ctx, `UPDATE scans SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkRunning transitions a scan into the running state.
func (r *scanRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE scans SET status = $2, started_at = $3, current_stage = 0 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.ScanRunning, time.Now().UTC())
	return err
}

// UpdateProgress records the pipeline stage the scan is currently in.
func (r *scanRepo) UpdateProgress(ctx context.Context, id uuid.UUID, stage int, label string) error {
	query := `UPDATE scans SET current_stage = $2, stage_label = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, stage, label)
	return err
}

// Complete marks a scan finished and stores its result counters.
func (r *scanRepo) Complete(ctx context.Context, id uuid.UUID, hostsDiscovered, liveHosts, openPorts int) error {
	query := `
		UPDATE scans
		SET status = $2, completed_at = $3, current_stage = 4, stage_label = 'Completed',
		    hosts_discovered = $4, live_hosts = $5, open_ports_found = $6
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.ScanCompleted, time.Now().UTC(),
		hostsDiscovered, liveHosts, openPorts)
	return err
}

// Fail marks a scan failed with a truncated error message.
func (r *scanRepo) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `UPDATE scans SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.ScanFailed, time.Now().UTC(), errMsg)
	return err
}

// MarkCancelled finalizes a scan that was cancelled mid-run.
func (r *scanRepo) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE scans SET status = $2, completed_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, models.ScanCancelled, time.Now().UTC())
	return err
}

// AddLog appends an audit entry for a scan.
func (r *scanRepo) AddLog(ctx context.Context, log *models.ScanLog) error {
	query := `
		INSERT INTO scan_logs (id, scan_id, stage, level, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING timestamp`

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Level == "" {
		log.Level = "info"
	}
	return r.pool.QueryRow(ctx, query, log.ID, log.ScanID, log.Stage, log.Level, log.Message).
		Scan(&log.Timestamp)
}

// ListLogs retrieves a scan's audit log in chronological order.
func (r *scanRepo) ListLogs(ctx context.Context, scanID uuid.UUID) ([]*models.ScanLog, error) {
	query := `
		SELECT id, scan_id, stage, level, message, timestamp
		FROM scan_logs WHERE scan_id = $1
		ORDER BY timestamp ASC`

	rows, err := r.pool.Query(ctx, query, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.ScanLog
	for rows.Next() {
		var l models.ScanLog
		if err := rows.Scan(&l.ID, &l.ScanID, &l.Stage, &l.Level, &l.Message, &l.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// CountByStatus returns scan counts grouped by status.
func (r *scanRepo) CountByStatus(ctx context.Context) (map[models.ScanStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM scans GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ScanStatus]int64)
	for rows.Next() {
		var status models.ScanStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Compile-time check to ensure scanRepo implements ScanRepository.
var _ ScanRepository = (*scanRepo)(nil)
