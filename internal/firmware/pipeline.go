package firmware

import (
	"log/slog"

	"github.com/sentinelops/netscout/internal/config"
	"github.com/sentinelops/netscout/internal/scanner"
)

// StageLabels names the three firmware stages, indexed by stage-1.
var StageLabels = [3]string{
	"Downloading Firmware",
	"Running EMBA Analysis",
	"AI Triage & Risk Scoring",
}

// Pipeline bundles the three firmware stages behind one constructor. The
// worker orchestrates them and owns persistence between stages.
type Pipeline struct {
	Download *Downloader
	Emba     *EmbaRunner
	Triage   *Triage
}

// NewPipeline wires the stages over a shared command runner.
func NewPipeline(cfg config.FirmwareConfig, runner scanner.CommandRunner, log *slog.Logger) *Pipeline {
	return &Pipeline{
		Download: NewDownloader(cfg, log),
		Emba:     NewEmbaRunner(cfg, runner, log),
		Triage:   NewTriage(cfg, log),
	}
}
