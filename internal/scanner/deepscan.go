package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// stageDeepScan runs the heavyweight nmap pass (SYN + service versions +
// default scripts + OS detection) on hosts that have open ports. Hosts
// whose MAC appears in priorPortCounts with an identical, non-zero port
// count are skipped: their fingerprint almost certainly has not changed.
func (p *Pipeline) stageDeepScan(ctx context.Context, hosts []DiscoveredHost, priorPortCounts map[string]int, onProgress ProgressFunc) ([]DiscoveredHost, error) {
	if len(hosts) == 0 {
		return hosts, nil
	}

	timeout := time.Duration(p.cfg.TimeoutPerHost) * time.Second

	var candidates []DiscoveredHost
	for _, h := range hosts {
		if len(h.OpenPorts) > 0 {
			candidates = append(candidates, h)
		}
	}

	skipped := 0
	var targets []DiscoveredHost
	if priorPortCounts != nil {
		for _, h := range candidates {
			mac := h.MAC
			if mac == "" {
				mac = SurrogateMAC(h.IP)
			}
			if prior, ok := priorPortCounts[mac]; ok && prior == len(h.OpenPorts) && prior > 0 {
				skipped++
				p.log.Info("stage4 skip", slog.String("ip", h.IP), slog.String("mac", mac), slog.Int("ports", prior))
			} else {
				targets = append(targets, h)
			}
		}
	} else {
		targets = candidates
	}

	msg := fmt.Sprintf("Stage 4: Deep scanning %d hosts", len(targets))
	if skipped > 0 {
		msg += fmt.Sprintf(" (%d skipped, unchanged port count)", skipped)
	}
	if err := p.report(ctx, onProgress, msg, map[string]any{"count": len(targets), "skipped": skipped}); err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		if err := p.report(ctx, onProgress,
			"Stage 4: No hosts need deep scanning, all skipped or no open ports",
			map[string]any{},
		); err != nil {
			return nil, err
		}
		return hosts, nil
	}

	sem := semaphore.NewWeighted(int64(p.cfg.DeepConcurrency))
	results := make([]*DiscoveredHost, len(targets))
	var wg sync.WaitGroup

	for i, h := range targets {
		wg.Add(1)
		go func(i int, h DiscoveredHost) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				p.log.Warn("deep scan error", slog.String("ip", h.IP), slog.Any("error", err))
				return
			}
			defer sem.Release(1)

			out, err := p.deepScanOne(ctx, h, timeout)
			if err != nil {
				p.log.Warn("deep scan error", slog.String("ip", h.IP), slog.Any("error", err))
				return
			}
			results[i] = &out
		}(i, h)
	}
	wg.Wait()

	// Merge deep results back into the full host list by IP.
	deepByIP := make(map[string]DiscoveredHost, len(targets))
	for _, r := range results {
		if r != nil {
			deepByIP[r.IP] = *r
		}
	}
	final := make([]DiscoveredHost, 0, len(hosts))
	for _, h := range hosts {
		if deep, ok := deepByIP[h.IP]; ok {
			final = append(final, deep)
		} else {
			final = append(final, h)
		}
	}

	osCount := 0
	for _, h := range final {
		if h.OSName != "" {
			osCount++
		}
	}
	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Stage 4: OS identified on %d/%d hosts", osCount, len(targets)),
		map[string]any{"os_identified": osCount},
	); err != nil {
		return nil, err
	}

	p.log.Info("stage4 complete", slog.Int("deep_scanned", len(targets)), slog.Int("os_identified", osCount))
	return final, nil
}

// deepScanOne runs the combined nmap pass against one host and folds the
// XML results into it.
func (p *Pipeline) deepScanOne(ctx context.Context, h DiscoveredHost, timeout time.Duration) (DiscoveredHost, error) {
	if len(h.OpenPorts) == 0 {
		return h, nil
	}

	ports := append([]int(nil), h.OpenPorts...)
	sort.Ints(ports)
	portStrs := make([]string, len(ports))
	for i, n := range ports {
		portStrs[i] = strconv.Itoa(n)
	}

	nmap := FindBinary(p.cfg.NmapPath)
	argv := []string{
		"sudo", nmap,
		"-sS",
		"-sV",
		"-sC",
		"-O",
		"--osscan-guess",
		"-p", strings.Join(portStrs, ","),
		"-T4",
		"--max-retries", "2",
		"-oX", "-",
		h.IP,
	}

	stdout, stderr, rc, err := p.runner.Run(ctx, argv, timeout)
	if err != nil {
		return h, err
	}
	if rc != 0 && stdout == "" {
		p.log.Warn("deep scan failed", slog.String("ip", h.IP), slog.String("stderr", truncate(stderr, 200)))
		return h, nil
	}

	h.NmapXML = stdout

	run, perr := parseNmapXML(stdout)
	if perr != nil {
		p.log.Error("deep scan xml parse failed", slog.String("ip", h.IP), slog.Any("error", perr))
		return h, nil
	}
	if len(run.Hosts) == 0 {
		return h, nil
	}
	he := run.Hosts[0]

	if len(he.OSMatches) > 0 {
		m := he.OSMatches[0]
		h.OSName = m.Name
		if acc, err := strconv.Atoi(m.Accuracy); err == nil {
			h.OSAccuracy = acc
		}
		if len(m.Classes) > 0 {
			h.OSFamily = m.Classes[0].OSFamily
			if len(m.Classes[0].CPE) > 0 {
				h.OSCPE = m.Classes[0].CPE[0]
			}
		}
	}

	if hn := he.hostname(); hn != "" {
		h.Hostname = hn
	}

	h.Services = make(map[int]PortService, len(he.Ports))
	for _, pe := range he.Ports {
		svc := PortService{
			Port:     pe.PortID,
			Protocol: pe.Protocol,
			State:    pe.State.State,
		}
		if svc.Protocol == "" {
			svc.Protocol = "tcp"
		}
		if svc.State == "" {
			svc.State = "unknown"
		}
		if pe.Service != nil {
			svc.Name = pe.Service.Name
			svc.Product = pe.Service.Product
			svc.Version = pe.Service.Version
			svc.ExtraInfo = pe.Service.ExtraInfo
			if len(pe.Service.CPE) > 0 {
				svc.CPE = pe.Service.CPE[0]
			}
		}
		if len(pe.Scripts) > 0 {
			lines := make([]string, len(pe.Scripts))
			for i, s := range pe.Scripts {
				lines[i] = fmt.Sprintf("%s: %s", s.ID, s.Output)
			}
			svc.Scripts = strings.Join(lines, "\n")
		}
		h.Services[pe.PortID] = svc
	}

	return h, nil
}
