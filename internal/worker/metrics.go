package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscout_scans_processed_total",
			Help: "Total number of scan jobs processed, by terminal status",
		},
		[]string{"status"},
	)

	hostsDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netscout_hosts_discovered_total",
			Help: "Total number of hosts discovered across all scans",
		},
	)

	openPortsFoundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netscout_open_ports_found_total",
			Help: "Total number of open ports found across all scans",
		},
	)

	firmwareProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscout_firmware_analyses_processed_total",
			Help: "Total number of firmware analyses processed, by terminal status",
		},
		[]string{"status"},
	)

	firmwareStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netscout_firmware_stage_duration_seconds",
			Help:    "Duration of each firmware pipeline stage in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 7200},
		},
		[]string{"stage"},
	)
)
