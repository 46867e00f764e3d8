package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, slog.Default()), mr
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, KindScan, "job-1"))
	require.NoError(t, s.Enqueue(ctx, KindScan, "job-2"))
	require.NoError(t, s.Enqueue(ctx, KindScan, "job-3"))

	for _, want := range []string{"job-1", "job-2", "job-3"} {
		got, err := s.Dequeue(ctx, KindScan, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDequeueTimeoutReturnsEmpty(t *testing.T) {
	s, _ := newTestScheduler(t)

	got, err := s.Dequeue(context.Background(), KindScan, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueuesAreIndependent(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, KindFirmware, "fw-1"))

	got, err := s.Dequeue(ctx, KindScan, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Dequeue(ctx, KindFirmware, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fw-1", got)
}

func TestCancelLifecycle(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	cancelled, err := s.IsCancelled(ctx, KindScan, "job-1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, s.Cancel(ctx, KindScan, "job-1"))

	cancelled, err = s.IsCancelled(ctx, KindScan, "job-1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Scan and firmware cancel sets do not bleed into each other.
	cancelled, err = s.IsCancelled(ctx, KindFirmware, "job-1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, s.ClearCancel(ctx, KindScan, "job-1"))
	cancelled, err = s.IsCancelled(ctx, KindScan, "job-1")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestPublishProgressReachesSubscriber(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	sub := s.Subscribe(ctx, KindScan)
	defer sub.Close()

	// Wait for the pattern subscription to be established.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	payload := map[string]any{
		"type":    "scan_progress",
		"scan_id": "job-1",
		"stage":   3,
		"message": "Stage 3: Scanned 10/24 hosts",
	}
	require.NoError(t, s.PublishProgress(ctx, KindScan, "job-1", payload))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "soc:scan:job-1", msg.Channel)
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "scan_progress", got["type"])
		assert.Equal(t, "job-1", got["scan_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no progress message received")
	}
}
