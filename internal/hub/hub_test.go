package hub

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/netscout/internal/scheduler"
)

func setupHub(t *testing.T) (*Hub, *scheduler.Scheduler, *httptest.Server) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sched := scheduler.New(rdb, slog.Default())
	h := New(sched, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/scans/", func(w http.ResponseWriter, r *http.Request) {
		h.ServeScan(w, r, strings.TrimPrefix(r.URL.Path, "/ws/scans/"))
	})
	mux.HandleFunc("/ws/firmware/", func(w http.ResponseWriter, r *http.Request) {
		h.ServeFirmware(w, r, strings.TrimPrefix(r.URL.Path, "/ws/firmware/"))
	})
	mux.HandleFunc("/ws/live", h.ServeLive)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, sched, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil publishes repeatedly until the connection yields a message
// containing want, sidestepping the subscribe/publish startup race.
func readUntil(t *testing.T, conn *websocket.Conn, want string, publish func()) string {
	t.Helper()
	var got string
	require.Eventually(t, func() bool {
		publish()
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		got = string(msg)
		return strings.Contains(got, want)
	}, 5*time.Second, 50*time.Millisecond)
	return got
}

func TestPingPong(t *testing.T) {
	_, _, srv := setupHub(t)
	conn := dial(t, srv, "/ws/live")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(msg))
}

func TestScanEventsReachScanWatcher(t *testing.T) {
	_, sched, srv := setupHub(t)
	conn := dial(t, srv, "/ws/scans/job-1")

	got := readUntil(t, conn, "scan_progress", func() {
		sched.PublishProgress(context.Background(), scheduler.KindScan, "job-1",
			map[string]any{"type": "scan_progress", "scan_id": "job-1", "stage": 2})
	})
	assert.Contains(t, got, `"scan_id":"job-1"`)
}

func TestScanEventsDoNotReachOtherScans(t *testing.T) {
	_, sched, srv := setupHub(t)
	other := dial(t, srv, "/ws/scans/job-other")
	watcher := dial(t, srv, "/ws/scans/job-1")

	readUntil(t, watcher, "scan_progress", func() {
		sched.PublishProgress(context.Background(), scheduler.KindScan, "job-1",
			map[string]any{"type": "scan_progress", "scan_id": "job-1"})
	})

	other.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestLiveFeedSeesAllKinds(t *testing.T) {
	_, sched, srv := setupHub(t)
	live := dial(t, srv, "/ws/live")

	readUntil(t, live, "scan_progress", func() {
		sched.PublishProgress(context.Background(), scheduler.KindScan, "job-1",
			map[string]any{"type": "scan_progress", "scan_id": "job-1"})
	})
	readUntil(t, live, "firmware_progress", func() {
		sched.PublishProgress(context.Background(), scheduler.KindFirmware, "fa-1",
			map[string]any{"type": "firmware_progress", "analysis_id": "fa-1"})
	})
}

func TestFirmwareEventsReachFirmwareWatcher(t *testing.T) {
	_, sched, srv := setupHub(t)
	conn := dial(t, srv, "/ws/firmware/fa-1")

	got := readUntil(t, conn, "firmware_completed", func() {
		sched.PublishProgress(context.Background(), scheduler.KindFirmware, "fa-1",
			map[string]any{"type": "firmware_completed", "analysis_id": "fa-1", "risk_score": 7.0})
	})
	assert.Contains(t, got, `"risk_score":7`)
}
