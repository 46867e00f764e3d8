package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Greppable rustscan output: "1.2.3.4 -> [22, 80, 443]".
var greppablePortsRe = regexp.MustCompile(`->\s*\[(.+?)\]`)

// stagePortScan finds open TCP ports on every host, rustscan first with an
// nmap SYN fallback. Progress is reported every 10 completed hosts and at
// the end.
func (p *Pipeline) stagePortScan(ctx context.Context, hosts []DiscoveredHost, onProgress ProgressFunc) ([]DiscoveredHost, error) {
	if len(hosts) == 0 {
		return hosts, nil
	}

	// Port scanning runs on a tighter per-host budget than the global one.
	timeoutSec := p.cfg.TimeoutPerHost
	if timeoutSec > 60 {
		timeoutSec = 60
	}

	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Stage 3: Port scanning %d hosts (top 1000 ports, %d parallel)", len(hosts), p.cfg.PortConcurrency),
		map[string]any{"count": len(hosts)},
	); err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(p.cfg.PortConcurrency))
	results := make([]*DiscoveredHost, len(hosts))

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		completed   int
		progressErr error
	)

	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h DiscoveredHost) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				p.log.Warn("port scan error", slog.String("ip", h.IP), slog.Any("error", err))
				return
			}
			defer sem.Release(1)

			out, err := p.portScanOne(ctx, h, timeoutSec)
			if err != nil {
				p.log.Warn("port scan error", slog.String("ip", h.IP), slog.Any("error", err))
				return
			}
			results[i] = &out

			mu.Lock()
			completed++
			c := completed
			if onProgress != nil && progressErr == nil && (c%10 == 0 || c == len(hosts)) {
				if err := onProgress(ctx,
					fmt.Sprintf("Stage 3: Scanned %d/%d hosts", c, len(hosts)),
					map[string]any{"completed": c, "total": len(hosts)},
				); err != nil {
					progressErr = err
				}
			}
			mu.Unlock()
		}(i, h)
	}
	wg.Wait()

	if progressErr != nil {
		return nil, progressErr
	}

	scanned := make([]DiscoveredHost, 0, len(hosts))
	totalPorts := 0
	withPorts := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		scanned = append(scanned, *r)
		totalPorts += len(r.OpenPorts)
		if len(r.OpenPorts) > 0 {
			withPorts++
		}
	}

	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Stage 3: %d open ports across %d/%d hosts", totalPorts, withPorts, len(scanned)),
		map[string]any{"total_ports": totalPorts, "hosts_with_ports": withPorts},
	); err != nil {
		return nil, err
	}

	p.log.Info("stage3 complete", slog.Int("total_ports", totalPorts), slog.Int("hosts_with_ports", withPorts))
	return scanned, nil
}

// portScanOne runs rustscan against one host, then an nmap SYN scan of the
// top 1000 ports when rustscan fails or finds nothing.
func (p *Pipeline) portScanOne(ctx context.Context, h DiscoveredHost, timeoutSec int) (DiscoveredHost, error) {
	rsTimeout := timeoutSec
	if rsTimeout > 30 {
		rsTimeout = 30
	}

	rustscan := FindBinary(p.cfg.RustscanPath)
	argv := []string{
		"sudo", rustscan,
		"-a", h.IP,
		"--top",
		"-b", strconv.Itoa(p.cfg.RustscanBatchSize),
		"--ulimit", "5000",
		"--timeout", strconv.Itoa(rsTimeout * 1000),
		"-g",
	}
	stdout, _, rc, err := p.runner.Run(ctx, argv, time.Duration(rsTimeout+5)*time.Second)
	if err != nil {
		return h, err
	}
	if rc == 0 && strings.TrimSpace(stdout) != "" {
		if ports := parseGreppablePorts(stdout); ports != nil {
			h.OpenPorts = ports
		}
	}

	if rc != 0 || len(h.OpenPorts) == 0 {
		nmapTimeout := timeoutSec
		if nmapTimeout > 45 {
			nmapTimeout = 45
		}
		nmap := FindBinary(p.cfg.NmapPath)
		argv = []string{
			"sudo", nmap,
			"-sS",
			"--top-ports", "1000",
			"--min-rate", "5000",
			"--max-retries", "1",
			"-T4",
			"--host-timeout", fmt.Sprintf("%ds", nmapTimeout),
			"-oX", "-",
			h.IP,
		}
		stdout, _, rc, err = p.runner.Run(ctx, argv, time.Duration(nmapTimeout+10)*time.Second)
		if err != nil {
			return h, err
		}
		if rc == 0 && strings.TrimSpace(stdout) != "" {
			if run, perr := parseNmapXML(stdout); perr == nil {
				for _, he := range run.Hosts {
					for _, pe := range he.Ports {
						if pe.State.State == "open" && pe.PortID > 0 {
							h.OpenPorts = append(h.OpenPorts, pe.PortID)
						}
					}
				}
			}
		}
	}

	return h, nil
}

// parseGreppablePorts extracts the port list from rustscan -g output.
// Duplicate port tokens are collapsed. Returns nil when no line matches.
func parseGreppablePorts(stdout string) []int {
	var ports []int
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		m := greppablePortsRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ports = ports[:0]
		seen := make(map[int]bool)
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if n, err := strconv.Atoi(part); err == nil && n > 0 && !seen[n] {
				seen[n] = true
				ports = append(ports, n)
			}
		}
	}
	if len(ports) == 0 {
		return nil
	}
	return ports
}
