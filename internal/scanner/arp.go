package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Per-host budget for MAC resolution. ARP replies are fast or never.
const arpTimeout = 15 * time.Second

// stageARPLookup resolves MAC + vendor for every host concurrently. Hosts
// that already carry a MAC from the ping sweep pass through untouched; a
// host whose lookup errors is dropped from the pipeline.
func (p *Pipeline) stageARPLookup(ctx context.Context, hosts []DiscoveredHost, onProgress ProgressFunc) ([]DiscoveredHost, error) {
	if len(hosts) == 0 {
		return hosts, nil
	}

	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Stage 2: ARP lookup for %d hosts", len(hosts)),
		map[string]any{"count": len(hosts)},
	); err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(p.cfg.ArpConcurrency))
	results := make([]*DiscoveredHost, len(hosts))
	var wg sync.WaitGroup

	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h DiscoveredHost) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				p.log.Warn("arp lookup error", slog.String("ip", h.IP), slog.Any("error", err))
				return
			}
			defer sem.Release(1)

			out, err := p.arpLookupOne(ctx, h)
			if err != nil {
				p.log.Warn("arp lookup error", slog.String("ip", h.IP), slog.Any("error", err))
				return
			}
			results[i] = &out
		}(i, h)
	}
	wg.Wait()

	resolved := make([]DiscoveredHost, 0, len(hosts))
	macsFound := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		resolved = append(resolved, *r)
		if r.MAC != "" {
			macsFound++
		}
	}

	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Stage 2: Resolved %d/%d MACs", macsFound, len(resolved)),
		map[string]any{"macs": macsFound},
	); err != nil {
		return nil, err
	}

	p.log.Info("stage2 complete", slog.Int("total", len(resolved)), slog.Int("macs_resolved", macsFound))
	return resolved, nil
}

// arpLookupOne tries arp-scan first, then falls back to an nmap ARP ping.
func (p *Pipeline) arpLookupOne(ctx context.Context, h DiscoveredHost) (DiscoveredHost, error) {
	if h.MAC != "" {
		return h, nil
	}

	arpScan := FindBinary(p.cfg.ArpScanPath)
	argv := []string{"sudo", arpScan, "-I", p.cfg.Interface, "-q", h.IP}
	stdout, _, rc, err := p.runner.Run(ctx, argv, arpTimeout)
	if err != nil {
		return h, err
	}
	if rc == 0 && strings.TrimSpace(stdout) != "" {
		for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
			parts := strings.Split(line, "\t")
			if len(parts) >= 2 && strings.Contains(parts[0], h.IP) {
				h.MAC = strings.TrimSpace(parts[1])
				if len(parts) >= 3 {
					h.Vendor = strings.TrimSpace(parts[2])
				}
				break
			}
		}
	}

	if h.MAC == "" {
		nmap := FindBinary(p.cfg.NmapPath)
		argv = []string{"sudo", nmap, "-sn", "-PR", "-oX", "-", h.IP}
		stdout, _, rc, err = p.runner.Run(ctx, argv, arpTimeout)
		if err != nil {
			return h, err
		}
		if rc == 0 {
			if run, perr := parseNmapXML(stdout); perr == nil {
				for _, he := range run.Hosts {
					if mac := he.address("mac"); mac != nil {
						h.MAC = mac.Addr
						h.Vendor = mac.Vendor
						break
					}
				}
			}
		}
	}

	return h, nil
}
