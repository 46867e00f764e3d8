package firmware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/netscout/internal/config"
)

func testFirmwareConfig(t *testing.T) config.FirmwareConfig {
	t.Helper()
	return config.FirmwareConfig{
		Dir:             t.TempDir(),
		EmbaPath:        "/opt/emba/emba",
		EmbaLogsDir:     t.TempDir(),
		GPTLevel:        "1",
		EmbaTimeout:     2 * time.Hour,
		OllamaModel:     "mistral",
		DownloadTimeout: 10 * time.Second,
	}
}

func TestDownloadWritesFileAndHash(t *testing.T) {
	payload := []byte("firmware-image-bytes")
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write(payload)
	}))
	defer srv.Close()

	cfg := testFirmwareConfig(t)
	d := NewDownloader(cfg, slog.Default())

	path, digest, size, err := d.Download(context.Background(), srv.URL, "192.168.1.10", "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Dir, "192_168_1_10_AABBCCDDEE01.bin"), path)
	assert.Equal(t, int64(len(payload)), size)

	want := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
	assert.Equal(t, "Mozilla/5.0 (SOC-FirmwareDownloader)", gotUA)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDownloadFollowsRedirects(t *testing.T) {
	payload := []byte("redirected-image")
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer final.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer srv.Close()

	d := NewDownloader(testFirmwareConfig(t), slog.Default())

	_, _, size, err := d.Download(context.Background(), srv.URL, "10.0.0.5", "AA:BB:CC:DD:EE:02")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
}

func TestDownloadHTTPErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(testFirmwareConfig(t), slog.Default())

	_, _, _, err := d.Download(context.Background(), srv.URL, "10.0.0.5", "AA:BB:CC:DD:EE:02")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
