package scanner

import (
	"net/netip"
	"strings"
)

// EstimateHostCount sizes a target spec for timeout scaling. CIDR blocks
// count their usable addresses, dash ranges are assumed small, and
// anything else is a single host.
func EstimateHostCount(target string) int {
	target = strings.TrimSpace(target)

	if prefix, err := netip.ParsePrefix(target); err == nil && prefix.Addr().Is4() {
		n := 1 << (32 - prefix.Bits())
		if n-2 > 1 {
			return n - 2
		}
		return 1
	}
	if strings.Contains(target, "-") {
		return 256
	}
	return 1
}

// PingSweepTimeout returns the stage 1 timeout in seconds, scaled to the
// estimated target size but never below base.
func PingSweepTimeout(target string, base int) int {
	hosts := EstimateHostCount(target)
	switch {
	case hosts <= 1:
		return base
	case hosts <= 254:
		return maxInt(base, 180)
	case hosts <= 510:
		return maxInt(base, 300)
	case hosts <= 2046:
		return maxInt(base, 600)
	default:
		return maxInt(base, 900)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
