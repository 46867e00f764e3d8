package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateHostCount(t *testing.T) {
	tests := []struct {
		target string
		want   int
	}{
		{"192.168.1.0/24", 254},
		{"10.0.0.0/23", 510},
		{"10.0.0.0/21", 2046},
		{"10.0.0.0/16", 65534},
		{"192.168.1.10/32", 1},
		{"192.168.1.10", 1},
		{"10.0.0.1-50", 256},
		{"printer.local", 1},
		{"  192.168.1.0/24  ", 254},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateHostCount(tt.target), "target %q", tt.target)
	}
}

func TestPingSweepTimeout(t *testing.T) {
	tests := []struct {
		target string
		base   int
		want   int
	}{
		{"192.168.1.10", 120, 120},
		{"192.168.1.0/24", 120, 180},
		{"10.0.0.0/23", 120, 300},
		{"10.0.0.0/21", 120, 600},
		{"10.0.0.0/16", 120, 900},
		// The base wins when it is already generous.
		{"192.168.1.0/24", 700, 700},
		{"192.168.1.10", 60, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PingSweepTimeout(tt.target, tt.base), "target %q base %d", tt.target, tt.base)
	}
}

func TestSurrogateMAC(t *testing.T) {
	assert.Equal(t, "00:00:192:168:", SurrogateMAC("192.168.1.10"))
	assert.Equal(t, "00:00:10:0:0:5", SurrogateMAC("10.0.0.5"))
	assert.Equal(t, "00:00:1:2", SurrogateMAC("1.2"))
}

func TestParseGreppablePorts(t *testing.T) {
	ports := parseGreppablePorts("192.168.1.5 -> [22, 80, 443]")
	assert.Equal(t, []int{22, 80, 443}, ports)

	assert.Nil(t, parseGreppablePorts("Open 192.168.1.5:22"))
	assert.Nil(t, parseGreppablePorts(""))

	// Non-numeric entries are dropped.
	ports = parseGreppablePorts("10.0.0.1 -> [22, junk, 443]")
	assert.Equal(t, []int{22, 443}, ports)

	// Repeated tokens are collapsed.
	ports = parseGreppablePorts("10.0.0.1 -> [22, 80, 22, 443, 80]")
	assert.Equal(t, []int{22, 80, 443}, ports)
}
