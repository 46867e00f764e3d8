package models

import (
	"time"

	"github.com/google/uuid"
)

// Host is an inventoried device, keyed by its MAC address. A host row
// survives across scans; each scan upserts into it by MAC.
type Host struct {
	MACAddress string `json:"mac_address" db:"mac_address"`

	// Latest scan that touched this device.
	ScanID *uuid.UUID `json:"scan_id,omitempty" db:"scan_id"`

	IPAddress string  `json:"ip_address" db:"ip_address"`
	Hostname  *string `json:"hostname,omitempty" db:"hostname"`
	Vendor    *string `json:"vendor,omitempty" db:"vendor"`

	// OS fingerprinting
	OSName     *string `json:"os_name,omitempty" db:"os_name"`
	OSFamily   *string `json:"os_family,omitempty" db:"os_family"`
	OSAccuracy *int    `json:"os_accuracy,omitempty" db:"os_accuracy"`
	OSCPE      *string `json:"os_cpe,omitempty" db:"os_cpe"`

	IsUp           bool `json:"is_up" db:"is_up"`
	ResponseTimeMs *int `json:"response_time_ms,omitempty" db:"response_time_ms"`

	// Raw deep-scan XML from the last scan that deep-scanned this host.
	NmapRawXML *string `json:"-" db:"nmap_raw_xml"`

	// User-editable
	FirmwareURL *string `json:"firmware_url,omitempty" db:"firmware_url"`

	// Cached open-port count; drives the stage-4 skip-unchanged decision.
	OpenPortCount int `json:"open_port_count" db:"open_port_count"`

	// Cached latest firmware analysis results
	FwPath         *string  `json:"fw_path,omitempty" db:"fw_path"`
	FwHash         *string  `json:"fw_hash,omitempty" db:"fw_hash"`
	EmbaLogDir     *string  `json:"emba_log_dir,omitempty" db:"emba_log_dir"`
	RiskReport     *string  `json:"risk_report,omitempty" db:"risk_report"`
	RiskScore      *float64 `json:"risk_score,omitempty" db:"risk_score"`
	FirmwareStatus *string  `json:"firmware_status,omitempty" db:"firmware_status"`

	DiscoveredAt time.Time `json:"discovered_at" db:"discovered_at"`
	LastSeen     time.Time `json:"last_seen" db:"last_seen"`

	// Loaded on demand, not present on every read.
	Ports []*Port `json:"ports,omitempty" db:"-"`
	Tags  []*Tag  `json:"tags,omitempty" db:"-"`
}

// Port is one observed TCP port on a host. Ports are replaced wholesale
// each time a scan touches their host.
type Port struct {
	ID         uuid.UUID `json:"id" db:"id"`
	HostMAC    string    `json:"host_mac" db:"host_mac"`
	PortNumber int       `json:"port_number" db:"port_number"`
	Protocol   string    `json:"protocol" db:"protocol"`
	State      string    `json:"state" db:"state"`

	ServiceName      *string `json:"service_name,omitempty" db:"service_name"`
	ServiceProduct   *string `json:"service_product,omitempty" db:"service_product"`
	ServiceVersion   *string `json:"service_version,omitempty" db:"service_version"`
	ServiceExtraInfo *string `json:"service_extra_info,omitempty" db:"service_extra_info"`
	ServiceCPE       *string `json:"service_cpe,omitempty" db:"service_cpe"`

	ScriptsOutput *string `json:"scripts_output,omitempty" db:"scripts_output"`
	Banner        *string `json:"banner,omitempty" db:"banner"`

	DiscoveredAt time.Time `json:"discovered_at" db:"discovered_at"`
}

// Tag labels hosts; many-to-many via the host_tags association.
type Tag struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Color       string    `json:"color" db:"color"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
