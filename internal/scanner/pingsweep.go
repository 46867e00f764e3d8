package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// stagePingSweep runs nmap -sn to find live hosts. ARP ping handles the
// local subnet, ICMP echo covers routed targets, and the timeout scales
// with the estimated target size.
func (p *Pipeline) stagePingSweep(ctx context.Context, target string, onProgress ProgressFunc) ([]DiscoveredHost, error) {
	timeout := PingSweepTimeout(target, p.cfg.TimeoutPerHost)
	hostCount := EstimateHostCount(target)
	nmap := FindBinary(p.cfg.NmapPath)

	minRate := "100"
	if hostCount > 64 {
		minRate = "300"
	}
	argv := []string{
		"sudo", nmap,
		"-sn",
		"-PR",
		"-PE",
		"-T4",
		"--max-retries", "1",
		"--min-rate", minRate,
		"-oX", "-",
	}
	// Parallel host groups for large scans.
	if hostCount > 128 {
		argv = append(argv, "--min-hostgroup", "64")
	}
	if hostCount > 512 {
		argv = append(argv, "--min-hostgroup", "128")
	}
	argv = append(argv, target)

	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Stage 1: Starting ping sweep (%d hosts, timeout %ds)", hostCount, timeout),
		map[string]any{"target": target, "estimated_hosts": hostCount, "timeout": timeout},
	); err != nil {
		return nil, err
	}

	stdout, stderr, rc, err := p.runner.Run(ctx, argv, time.Duration(timeout)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ping sweep: %w", err)
	}
	if rc != 0 && stdout == "" {
		p.log.Warn("ping sweep failed", slog.Int("rc", rc), slog.String("stderr", stderr))
		if err := p.report(ctx, onProgress,
			fmt.Sprintf("Stage 1: Ping sweep failed: %s", truncate(stderr, 200)),
			map[string]any{"error": true},
		); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var hosts []DiscoveredHost
	run, perr := parseNmapXML(stdout)
	if perr != nil {
		p.log.Error("ping sweep xml parse failed", slog.Any("error", perr))
	} else {
		for _, he := range run.Hosts {
			if he.Status.State != "up" {
				continue
			}
			addr := he.address("ipv4")
			if addr == nil {
				continue
			}
			h := DiscoveredHost{IP: addr.Addr, IsUp: true}
			if mac := he.address("mac"); mac != nil {
				h.MAC = mac.Addr
				h.Vendor = mac.Vendor
			}
			h.Hostname = he.hostname()
			h.ResponseTimeMs = he.srttMillis()
			hosts = append(hosts, h)
		}
	}

	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Stage 1: Found %d live hosts", len(hosts)),
		map[string]any{"count": len(hosts)},
	); err != nil {
		return nil, err
	}

	p.log.Info("stage1 complete", slog.Int("live_hosts", len(hosts)), slog.String("target", target))
	return hosts, nil
}
