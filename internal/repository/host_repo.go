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

const hostColumns = `
	mac_address, scan_id, ip_address, hostname, vendor,
	os_name, os_family, os_accuracy, os_cpe,
	is_up, response_time_ms, nmap_raw_xml, firmware_url, open_port_count,
	fw_path, fw_hash, emba_log_dir, risk_report, risk_score, firmware_status,
	discovered_at, last_seen`

// HostFilter narrows List results.
type HostFilter struct {
	ScanID       *uuid.UUID
	IPAddress    string
	OSFamily     string
	IsUp         *bool
	HasOpenPorts bool
	TagName      string
	Search       string
	Page         int
	PageSize     int
}

// InventoryStats are the host-level dashboard aggregates.
type InventoryStats struct {
	TotalHosts int64 `json:"total"`
	LiveHosts  int64 `json:"live"`
	UniqueIPs  int64 `json:"unique_ips"`
	TotalPorts int64 `json:"total_ports"`
	OpenPorts  int64 `json:"open_ports"`
}

// NameCount is a generic (label, count) aggregate row.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// PortCount is a (port, count) aggregate row.
type PortCount struct {
	Port  int   `json:"port"`
	Count int64 `json:"count"`
}

// HostRepository defines the interface for device inventory operations.
// Hosts are keyed by MAC address and survive across scans.
type HostRepository interface {
	GetByMAC(ctx context.Context, mac string) (*models.Host, error)
	GetWithDetails(ctx context.Context, mac string) (*models.Host, error)
	List(ctx context.Context, filter HostFilter) ([]*models.Host, int64, error)
	ListAllWithDetails(ctx context.Context) ([]*models.Host, error)
	ListByScanWithDetails(ctx context.Context, scanID uuid.UUID) ([]*models.Host, error)
	Update(ctx context.Context, host *models.Host) error
	Delete(ctx context.Context, mac string) error

	UpsertScanResult(ctx context.Context, host *models.Host) error
	UpsertImport(ctx context.Context, host *models.Host) error
	ReplacePorts(ctx context.Context, mac string, ports []*models.Port) error
	PortCounts(ctx context.Context) (map[string]int, error)

	SetFirmwareStatus(ctx context.Context, mac string, status models.FirmwareStatus) error
	SetFirmwareURL(ctx context.Context, mac, url string) error
	SetFirmwareDownload(ctx context.Context, mac, fwPath, fwHash string, status models.FirmwareStatus) error
	SetFirmwareEmba(ctx context.Context, mac, embaLogDir string, status models.FirmwareStatus) error
	SetFirmwareTriage(ctx context.Context, mac, report string, score *float64, status models.FirmwareStatus) error
	CountWithFirmwareURL(ctx context.Context) (int64, error)

	Stats(ctx context.Context) (*InventoryStats, error)
	TopServices(ctx context.Context, limit int) ([]NameCount, error)
	TopPorts(ctx context.Context, limit int) ([]PortCount, error)
	OSDistribution(ctx context.Context, limit int) ([]NameCount, error)
}

type hostRepo struct {
	pool *pgxpool.Pool
}

// NewHostRepository creates a new host repository.
func NewHostRepository(pool *pgxpool.Pool) HostRepository {
	return &hostRepo{pool: pool}
}

func scanHostRow(row pgx.Row) (*models.Host, error) {
	var h models.Host
	err := row.Scan(
		&h.MACAddress,
		&h.ScanID,
		&h.IPAddress,
		&h.Hostname,
		&h.Vendor,
		&h.OSName,
		&h.OSFamily,
		&h.OSAccuracy,
		&h.OSCPE,
		&h.IsUp,
		&h.ResponseTimeMs,
		&h.NmapRawXML,
		&h.FirmwareURL,
		&h.OpenPortCount,
		&h.FwPath,
		&h.FwHash,
		&h.EmbaLogDir,
		&h.RiskReport,
		&h.RiskScore,
		&h.FirmwareStatus,
		&h.DiscoveredAt,
		&h.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetByMAC retrieves a host by MAC address.
func (r *hostRepo) GetByMAC(ctx context.Context, mac string) (*models.Host, error) {
	query := `SELECT` + hostColumns + ` FROM hosts WHERE mac_address = $1`
	return scanHostRow(r.pool.QueryRow(ctx, query, mac))
}

// GetWithDetails retrieves a host with its ports and tags loaded.
func (r *hostRepo) GetWithDetails(ctx context.Context, mac string) (*models.Host, error) {
	host, err := r.GetByMAC(ctx, mac)
	if err != nil || host == nil {
		return host, err
	}

	ports, err := r.listPorts(ctx, []string{mac})
	if err != nil {
		return nil, err
	}
	host.Ports = ports[mac]

	tags, err := r.listTags(ctx, []string{mac})
	if err != nil {
		return nil, err
	}
	host.Tags = tags[mac]
	return host, nil
}

// List retrieves hosts matching the filter, most recently seen first. Tags
// are loaded for the returned page.
func (r *hostRepo) List(ctx context.Context, filter HostFilter) ([]*models.Host, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}

	where := ` WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ScanID != nil {
		where += ` AND h.scan_id = ` + arg(*filter.ScanID)
	}
	if filter.IPAddress != "" {
		where += ` AND h.ip_address ILIKE ` + arg("%"+filter.IPAddress+"%")
	}
	if filter.OSFamily != "" {
		where += ` AND h.os_family ILIKE ` + arg("%"+filter.OSFamily+"%")
	}
	if filter.IsUp != nil {
		where += ` AND h.is_up = ` + arg(*filter.IsUp)
	}
	if filter.HasOpenPorts {
		where += ` AND h.open_port_count > 0`
	}
	if filter.TagName != "" {
		// EXISTS keeps one row per host even when several tags match.
		where += ` AND EXISTS (SELECT 1 FROM host_tags ht` +
			` JOIN tags t ON t.id = ht.tag_id` +
			` WHERE ht.host_mac = h.mac_address AND t.name ILIKE ` + arg("%"+filter.TagName+"%") + `)`
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where += ` AND (h.ip_address ILIKE ` + p +
			` OR h.hostname ILIKE ` + p +
			` OR h.os_name ILIKE ` + p +
			` OR h.vendor ILIKE ` + p +
			` OR h.mac_address ILIKE ` + p + `)`
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM hosts h` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + prefixColumns(hostColumns, "h.") +
		` FROM hosts h` + where +
		fmt.Sprintf(` ORDER BY h.last_seen DESC, h.mac_address LIMIT %d OFFSET %d`,
			filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var hosts []*models.Host
	var macs []string
	for rows.Next() {
		h, err := scanHostRow(rows)
		if err != nil {
			return nil, 0, err
		}
		hosts = append(hosts, h)
		macs = append(macs, h.MACAddress)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	tags, err := r.listTags(ctx, macs)
	if err != nil {
		return nil, 0, err
	}
	for _, h := range hosts {
		h.Tags = tags[h.MACAddress]
	}
	return hosts, total, nil
}

// ListAllWithDetails retrieves every host with ports and tags, newest first.
func (r *hostRepo) ListAllWithDetails(ctx context.Context) ([]*models.Host, error) {
	query := `SELECT` + hostColumns + ` FROM hosts ORDER BY discovered_at DESC`
	return r.listWithDetails(ctx, query)
}

// ListByScanWithDetails retrieves the hosts last touched by a scan.
func (r *hostRepo) ListByScanWithDetails(ctx context.Context, scanID uuid.UUID) ([]*models.Host, error) {
	query := `SELECT` + hostColumns + ` FROM hosts WHERE scan_id = $1 ORDER BY ip_address`
	return r.listWithDetails(ctx, query, scanID)
}

func (r *hostRepo) listWithDetails(ctx context.Context, query string, args ...any) ([]*models.Host, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []*models.Host
	var macs []string
	for rows.Next() {
		h, err := scanHostRow(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
		macs = append(macs, h.MACAddress)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ports, err := r.listPorts(ctx, macs)
	if err != nil {
		return nil, err
	}
	tags, err := r.listTags(ctx, macs)
	if err != nil {
		return nil, err
	}
	for _, h := range hosts {
		h.Ports = ports[h.MACAddress]
		h.Tags = tags[h.MACAddress]
	}
	return hosts, nil
}

// Update persists user edits to host fields.
func (r *hostRepo) Update(ctx context.Context, host *models.Host) error {
	query := `
		UPDATE hosts
		SET ip_address = $2, hostname = $3, vendor = $4, os_name = $5,
		    os_family = $6, firmware_url = $7
		WHERE mac_address = $1`

	result, err := r.pool.Exec(ctx, query,
		host.MACAddress,
		host.IPAddress,
		host.Hostname,
		host.Vendor,
		host.OSName,
		host.OSFamily,
		host.FirmwareURL,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a host. Ports, tag associations, and firmware analyses
// cascade with it.
func (r *hostRepo) Delete(ctx context.Context, mac string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM hosts WHERE mac_address = $1`, mac)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpsertScanResult folds the latest scan observation into the inventory.
// Fresh non-null observations win; nulls keep what an earlier scan learned.
// is_up and response_time_ms always reflect the latest scan.
func (r *hostRepo) UpsertScanResult(ctx context.Context, host *models.Host) error {
	query := `
		INSERT INTO hosts (mac_address, scan_id, ip_address, hostname, vendor,
		                   os_name, os_family, os_accuracy, os_cpe,
		                   is_up, response_time_ms, nmap_raw_xml, open_port_count, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (mac_address) DO UPDATE SET
			scan_id          = EXCLUDED.scan_id,
			ip_address       = EXCLUDED.ip_address,
			hostname         = COALESCE(EXCLUDED.hostname, hosts.hostname),
			vendor           = COALESCE(EXCLUDED.vendor, hosts.vendor),
			os_name          = COALESCE(EXCLUDED.os_name, hosts.os_name),
			os_family        = COALESCE(EXCLUDED.os_family, hosts.os_family),
			os_accuracy      = COALESCE(EXCLUDED.os_accuracy, hosts.os_accuracy),
			os_cpe           = COALESCE(EXCLUDED.os_cpe, hosts.os_cpe),
			is_up            = EXCLUDED.is_up,
			response_time_ms = EXCLUDED.response_time_ms,
			nmap_raw_xml     = COALESCE(EXCLUDED.nmap_raw_xml, hosts.nmap_raw_xml),
			open_port_count  = EXCLUDED.open_port_count,
			last_seen        = EXCLUDED.last_seen
		RETURNING discovered_at, last_seen`

	return r.pool.QueryRow(ctx, query,
		host.MACAddress,
		host.ScanID,
		host.IPAddress,
		host.Hostname,
		host.Vendor,
		host.OSName,
		host.OSFamily,
		host.OSAccuracy,
		host.OSCPE,
		host.IsUp,
		host.ResponseTimeMs,
		host.NmapRawXML,
		host.OpenPortCount,
		time.Now().UTC(),
	).Scan(&host.DiscoveredAt, &host.LastSeen)
}

// UpsertImport merges an imported device record. Null fields never
// overwrite user edits already in the inventory.
func (r *hostRepo) UpsertImport(ctx context.Context, host *models.Host) error {
	query := `
		INSERT INTO hosts (mac_address, ip_address, hostname, vendor,
		                   os_name, os_family, os_accuracy, os_cpe,
		                   firmware_url, is_up, open_port_count, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (mac_address) DO UPDATE SET
			ip_address      = COALESCE(NULLIF(EXCLUDED.ip_address, ''), hosts.ip_address),
			hostname        = COALESCE(EXCLUDED.hostname, hosts.hostname),
			vendor          = COALESCE(EXCLUDED.vendor, hosts.vendor),
			os_name         = COALESCE(EXCLUDED.os_name, hosts.os_name),
			os_family       = COALESCE(EXCLUDED.os_family, hosts.os_family),
			os_accuracy     = COALESCE(EXCLUDED.os_accuracy, hosts.os_accuracy),
			os_cpe          = COALESCE(EXCLUDED.os_cpe, hosts.os_cpe),
			firmware_url    = COALESCE(EXCLUDED.firmware_url, hosts.firmware_url),
			is_up           = EXCLUDED.is_up,
			open_port_count = EXCLUDED.open_port_count,
			last_seen       = COALESCE(EXCLUDED.last_seen, hosts.last_seen)`

	lastSeen := &host.LastSeen
	if host.LastSeen.IsZero() {
		lastSeen = nil
	}
	_, err := r.pool.Exec(ctx, query,
		host.MACAddress,
		host.IPAddress,
		host.Hostname,
		host.Vendor,
		host.OSName,
		host.OSFamily,
		host.OSAccuracy,
		host.OSCPE,
		host.FirmwareURL,
		host.IsUp,
		host.OpenPortCount,
		lastSeen,
	)
	return err
}

// ReplacePorts swaps a host's port set wholesale inside one transaction.
func (r *hostRepo) ReplacePorts(ctx context.Context, mac string, ports []*models.Port) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ports WHERE host_mac = $1`, mac); err != nil {
		return err
	}

	query := `
		INSERT INTO ports (id, host_mac, port_number, protocol, state,
		                   service_name, service_product, service_version,
		                   service_extra_info, service_cpe, scripts_output, banner)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for _, p := range ports {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.Protocol == "" {
			p.Protocol = "tcp"
		}
		if p.State == "" {
			p.State = "open"
		}
		if _, err := tx.Exec(ctx, query,
			p.ID, mac, p.PortNumber, p.Protocol, p.State,
			p.ServiceName, p.ServiceProduct, p.ServiceVersion,
			p.ServiceExtraInfo, p.ServiceCPE, p.ScriptsOutput, p.Banner,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// PortCounts returns MAC to open-port-count over the whole inventory,
// used by the deep-scan skip optimization.
func (r *hostRepo) PortCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT mac_address, open_port_count FROM hosts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var mac string
		var n int
		if err := rows.Scan(&mac, &n); err != nil {
			return nil, err
		}
		counts[mac] = n
	}
	return counts, rows.Err()
}

// SetFirmwareStatus mirrors the firmware pipeline state onto the host.
func (r *hostRepo) SetFirmwareStatus(ctx context.Context, mac string, status models.FirmwareStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE hosts SET firmware_status = $2 WHERE mac_address = $1`, mac, string(status))
	return err
}

// SetFirmwareURL records the firmware image URL for a host.
func (r *hostRepo) SetFirmwareURL(ctx context.Context, mac, url string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE hosts SET firmware_url = $2 WHERE mac_address = $1`, mac, url)
	return err
}

// SetFirmwareDownload caches stage A results on the host.
func (r *hostRepo) SetFirmwareDownload(ctx context.Context, mac, fwPath, fwHash string, status models.FirmwareStatus) error {
	query := `UPDATE hosts SET fw_path = $2, fw_hash = $3, firmware_status = $4 WHERE mac_address = $1`
	_, err := r.pool.Exec(ctx, query, mac, fwPath, fwHash, string(status))
	return err
}

// SetFirmwareEmba caches stage B results on the host.
func (r *hostRepo) SetFirmwareEmba(ctx context.Context, mac, embaLogDir string, status models.FirmwareStatus) error {
	query := `UPDATE hosts SET emba_log_dir = $2, firmware_status = $3 WHERE mac_address = $1`
	_, err := r.pool.Exec(ctx, query, mac, embaLogDir, string(status))
	return err
}

// SetFirmwareTriage caches stage C results on the host.
func (r *hostRepo) SetFirmwareTriage(ctx context.Context, mac, report string, score *float64, status models.FirmwareStatus) error {
	query := `UPDATE hosts SET risk_report = $2, risk_score = $3, firmware_status = $4 WHERE mac_address = $1`
	_, err := r.pool.Exec(ctx, query, mac, report, score, string(status))
	return err
}

// CountWithFirmwareURL counts hosts that have a firmware URL configured.
func (r *hostRepo) CountWithFirmwareURL(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hosts WHERE firmware_url IS NOT NULL`).Scan(&n)
	return n, err
}

// Stats computes the host and port dashboard aggregates.
func (r *hostRepo) Stats(ctx context.Context) (*InventoryStats, error) {
	var s InventoryStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_up),
		       COUNT(DISTINCT ip_address)
		FROM hosts`).Scan(&s.TotalHosts, &s.LiveHosts, &s.UniqueIPs)
	if err != nil {
		return nil, err
	}
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE state = 'open') FROM ports`).
		Scan(&s.TotalPorts, &s.OpenPorts)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TopServices returns the most common service names across open ports.
func (r *hostRepo) TopServices(ctx context.Context, limit int) ([]NameCount, error) {
	query := `
		SELECT service_name, COUNT(*) AS count
		FROM ports WHERE service_name IS NOT NULL
		GROUP BY service_name ORDER BY count DESC LIMIT $1`
	return r.nameCounts(ctx, query, limit)
}

// OSDistribution returns host counts grouped by OS family.
func (r *hostRepo) OSDistribution(ctx context.Context, limit int) ([]NameCount, error) {
	query := `
		SELECT os_family, COUNT(*) AS count
		FROM hosts WHERE os_family IS NOT NULL
		GROUP BY os_family ORDER BY count DESC LIMIT $1`
	return r.nameCounts(ctx, query, limit)
}

func (r *hostRepo) nameCounts(ctx context.Context, query string, limit int) ([]NameCount, error) {
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// TopPorts returns the most common open port numbers.
func (r *hostRepo) TopPorts(ctx context.Context, limit int) ([]PortCount, error) {
	query := `
		SELECT port_number, COUNT(*) AS count
		FROM ports WHERE state = 'open'
		GROUP BY port_number ORDER BY count DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PortCount
	for rows.Next() {
		var pc PortCount
		if err := rows.Scan(&pc.Port, &pc.Count); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (r *hostRepo) listPorts(ctx context.Context, macs []string) (map[string][]*models.Port, error) {
	result := make(map[string][]*models.Port)
	if len(macs) == 0 {
		return result, nil
	}

	query := `
		SELECT id, host_mac, port_number, protocol, state,
		       service_name, service_product, service_version,
		       service_extra_info, service_cpe, scripts_output, banner, discovered_at
		FROM ports WHERE host_mac = ANY($1)
		ORDER BY port_number ASC`

	rows, err := r.pool.Query(ctx, query, macs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Port
		if err := rows.Scan(
			&p.ID, &p.HostMAC, &p.PortNumber, &p.Protocol, &p.State,
			&p.ServiceName, &p.ServiceProduct, &p.ServiceVersion,
			&p.ServiceExtraInfo, &p.ServiceCPE, &p.ScriptsOutput, &p.Banner, &p.DiscoveredAt,
		); err != nil {
			return nil, err
		}
		result[p.HostMAC] = append(result[p.HostMAC], &p)
	}
	return result, rows.Err()
}

func (r *hostRepo) listTags(ctx context.Context, macs []string) (map[string][]*models.Tag, error) {
	result := make(map[string][]*models.Tag)
	if len(macs) == 0 {
		return result, nil
	}

	query := `
		SELECT ht.host_mac, t.id, t.name, t.color, t.description, t.created_at
		FROM host_tags ht JOIN tags t ON t.id = ht.tag_id
		WHERE ht.host_mac = ANY($1)
		ORDER BY t.name ASC`

	rows, err := r.pool.Query(ctx, query, macs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mac string
		var t models.Tag
		if err := rows.Scan(&mac, &t.ID, &t.Name, &t.Color, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		result[mac] = append(result[mac], &t)
	}
	return result, rows.Err()
}

// prefixColumns qualifies each column in a comma-separated list.
func prefixColumns(columns, prefix string) string {
	out := ""
	for i, c := range splitColumns(columns) {
		if i > 0 {
			out += ", "
		}
		out += prefix + c
	}
	return " " + out
}

func splitColumns(columns string) []string {
	var out []string
	field := ""
	for _, r := range columns {
		switch r {
		case ',':
			out = append(out, field)
			field = ""
		case ' ', '\n', '\t':
		default:
			field += string(r)
		}
	}
	if field != "" {
		out = append(out, field)
	}
	return out
}

// Compile-time check to ensure hostRepo implements HostRepository.
var _ HostRepository = (*hostRepo)(nil)
