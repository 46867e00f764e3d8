package firmware

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sentinelops/netscout/internal/config"
	"github.com/sentinelops/netscout/internal/scanner"
)

// EmbaRunner drives the EMBA firmware analyzer against a downloaded image.
type EmbaRunner struct {
	cfg    config.FirmwareConfig
	runner scanner.CommandRunner
	log    *slog.Logger
}

// NewEmbaRunner builds an EMBA runner over the shared command runner.
func NewEmbaRunner(cfg config.FirmwareConfig, runner scanner.CommandRunner, log *slog.Logger) *EmbaRunner {
	return &EmbaRunner{cfg: cfg, runner: runner, log: log}
}

// Run analyzes fwPath and returns the EMBA log directory. deviceID keys
// the log directory name and is expected to be short (the first chunk of
// the analysis ID). A non-zero exit, including timeout, is an error.
func (e *EmbaRunner) Run(ctx context.Context, fwPath, deviceID, ip string) (string, error) {
	logDir := filepath.Join(e.cfg.EmbaLogsDir,
		fmt.Sprintf("device_%s_%s", deviceID, strings.ReplaceAll(ip, ".", "_")),
	)

	e.log.Info("emba start",
		slog.String("fw_path", fwPath),
		slog.String("log_dir", logDir),
		slog.String("gpt_level", e.cfg.GPTLevel),
	)

	argv := []string{
		"sudo", e.cfg.EmbaPath,
		"-f", fwPath,
		"-l", logDir,
	}
	if profile := e.scanProfile(); profile != "" {
		argv = append(argv, "-p", profile)
	}
	argv = append(argv, "-g")

	env := []string{"GPT_OPTION=" + e.cfg.GPTLevel}
	_, stderr, rc, err := e.runner.RunEnv(ctx, argv, env, e.cfg.EmbaTimeout)
	if err != nil {
		return "", fmt.Errorf("run emba: %w", err)
	}
	if rc != 0 {
		msg := truncate(stderr, 2000)
		if msg == "" {
			msg = "Unknown error"
		}
		e.log.Error("emba failed", slog.Int("rc", rc), slog.String("stderr", truncate(msg, 500)))
		return "", fmt.Errorf("emba exited with code %d: %s", rc, truncate(msg, 500))
	}

	e.log.Info("emba done", slog.String("log_dir", logDir))
	return logDir, nil
}

// scanProfile prefers the GPT-assisted profile when the EMBA install
// ships one, then the default profile.
func (e *EmbaRunner) scanProfile() string {
	base := filepath.Join(filepath.Dir(e.cfg.EmbaPath), "scan-profiles")
	for _, name := range []string{"default-scan-gpt.emba", "default-scan.emba"} {
		p := filepath.Join(base, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
