// Package firmware implements the three-stage firmware assessment
// pipeline: download, EMBA analysis, and AI triage.
package firmware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sentinelops/netscout/internal/config"
)

const downloadUserAgent = "Mozilla/5.0 (SOC-FirmwareDownloader)"

// Downloader fetches firmware images over HTTP and stores them under the
// configured firmware directory.
type Downloader struct {
	cfg    config.FirmwareConfig
	client *http.Client
	log    *slog.Logger
}

// NewDownloader builds a downloader with a 30s connect budget and the
// configured total timeout. Redirects are followed.
func NewDownloader(cfg config.FirmwareConfig, log *slog.Logger) *Downloader {
	return &Downloader{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.DownloadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			},
		},
		log: log,
	}
}

// Download streams the image at url to disk, hashing as it goes. The file
// is named from the device's IP and MAC so repeat downloads overwrite.
// Returns the local path, the SHA-256 hex digest, and the byte count.
func (d *Downloader) Download(ctx context.Context, url, ip, mac string) (string, string, int64, error) {
	fname := fmt.Sprintf("%s_%s.bin",
		strings.ReplaceAll(ip, ".", "_"),
		strings.ReplaceAll(mac, ":", ""),
	)
	dest := filepath.Join(d.cfg.Dir, fname)

	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("create firmware dir: %w", err)
	}

	d.log.Info("firmware download start", slog.String("url", url), slog.String("dest", dest))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", 0, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", 0, fmt.Errorf("download firmware: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", 0, fmt.Errorf("download firmware: HTTP %d from %s", resp.StatusCode, url)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", "", 0, fmt.Errorf("create firmware file: %w", err)
	}
	defer f.Close()

	sha := sha256.New()
	buf := make([]byte, 8192)
	total, err := io.CopyBuffer(io.MultiWriter(f, sha), resp.Body, buf)
	if err != nil {
		os.Remove(dest)
		return "", "", 0, fmt.Errorf("write firmware file: %w", err)
	}

	digest := hex.EncodeToString(sha.Sum(nil))
	d.log.Info("firmware download done",
		slog.String("dest", dest),
		slog.String("sha256", digest[:16]),
		slog.Int64("size", total),
	)
	return dest, digest, total, nil
}
