package scanner

import (
	"context"
	"errors"
	"strings"
)

// ErrCancelled aborts the pipeline when a progress hook reports that the
// scan was cancelled.
var ErrCancelled = errors.New("scan cancelled by user")

// ProgressFunc is called at stage boundaries and periodic checkpoints.
// Returning a non-nil error aborts the pipeline; the error propagates out
// of Run unchanged.
type ProgressFunc func(ctx context.Context, message string, details map[string]any) error

// DiscoveredHost accumulates everything the four stages learn about one
// live host. Each stage fills in its own fields and hands the slice to the
// next stage.
type DiscoveredHost struct {
	IP             string
	MAC            string
	Vendor         string
	Hostname       string
	IsUp           bool
	ResponseTimeMs *int
	OpenPorts      []int

	// Stage 4 results.
	OSName     string
	OSFamily   string
	OSAccuracy int
	OSCPE      string
	Services   map[int]PortService
	NmapXML    string
}

// PortService is the per-port detail extracted from a deep scan.
type PortService struct {
	Port      int
	Protocol  string
	State     string
	Name      string
	Product   string
	Version   string
	ExtraInfo string
	CPE       string
	Scripts   string
}

// SurrogateMAC derives a stable placeholder identity for hosts that never
// resolved a MAC, from the first 8 characters of the colon-form IP.
func SurrogateMAC(ip string) string {
	s := strings.ReplaceAll(ip, ".", ":")
	if len(s) > 8 {
		s = s[:8]
	}
	return "00:00:" + s
}
