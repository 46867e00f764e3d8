package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelops/netscout/internal/config"
)

// Pipeline runs the four discovery stages in order, each stage filtering
// targets for the next:
//
//  1. nmap ping sweep      live host discovery
//  2. ARP MAC lookup       concurrent MAC + vendor resolution
//  3. port scan            rustscan top ports with nmap fallback
//  4. nmap deep scan       SYN + version + scripts + OS on hosts with open ports
type Pipeline struct {
	cfg    config.ScannerConfig
	runner CommandRunner
	log    *slog.Logger
}

// NewPipeline builds a pipeline over the given runner. Tests inject a fake
// runner; production uses ExecRunner.
func NewPipeline(cfg config.ScannerConfig, runner CommandRunner, log *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, runner: runner, log: log}
}

// Run executes the full pipeline against target. priorPortCounts maps MAC
// addresses to the open-port count recorded by earlier scans; hosts whose
// count is unchanged skip the deep scan. A progress hook error aborts the
// pipeline and is returned unchanged, so cancellation signalled through
// the hook surfaces here as ErrCancelled.
func (p *Pipeline) Run(ctx context.Context, target string, priorPortCounts map[string]int, onProgress ProgressFunc) ([]DiscoveredHost, error) {
	p.log.Info("pipeline start", slog.String("target", target))
	start := time.Now()

	hosts, err := p.stagePingSweep(ctx, target, onProgress)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		if err := p.report(ctx, onProgress, "Pipeline complete: No live hosts found", map[string]any{"total": 0}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	hosts, err = p.stageARPLookup(ctx, hosts, onProgress)
	if err != nil {
		return nil, err
	}

	hosts, err = p.stagePortScan(ctx, hosts, onProgress)
	if err != nil {
		return nil, err
	}

	hosts, err = p.stageDeepScan(ctx, hosts, priorPortCounts, onProgress)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Seconds()
	totalPorts := 0
	for _, h := range hosts {
		totalPorts += len(h.OpenPorts)
	}

	if err := p.report(ctx, onProgress,
		fmt.Sprintf("Pipeline complete: %d hosts, %d open ports in %.1fs", len(hosts), totalPorts, elapsed),
		map[string]any{"total_hosts": len(hosts), "total_ports": totalPorts, "elapsed": elapsed},
	); err != nil {
		return nil, err
	}

	p.log.Info("pipeline complete",
		slog.Int("hosts", len(hosts)),
		slog.Int("ports", totalPorts),
		slog.Float64("elapsed_s", elapsed),
	)
	return hosts, nil
}

func (p *Pipeline) report(ctx context.Context, onProgress ProgressFunc, message string, details map[string]any) error {
	if onProgress == nil {
		return nil
	}
	return onProgress(ctx, message, details)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
