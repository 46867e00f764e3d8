// Package scheduler coordinates scan and firmware jobs across the API and
// worker processes. It owns the Redis-backed work queues, the cancellation
// sets, and the progress publish channels.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobKind selects which queue, cancel set, and channel namespace an
// operation applies to.
type JobKind string

const (
	KindScan     JobKind = "scan"
	KindFirmware JobKind = "firmware"
)

// Redis key layout. The worker and the API process share these.
const (
	scanQueueKey      = "soc:scan_queue"
	firmwareQueueKey  = "soc:firmware_queue"
	scanCancelKey     = "soc:scan_cancel"
	firmwareCancelKey = "soc:firmware_cancel"
)

func (k JobKind) queueKey() string {
	if k == KindFirmware {
		return firmwareQueueKey
	}
	return scanQueueKey
}

func (k JobKind) cancelKey() string {
	if k == KindFirmware {
		return firmwareCancelKey
	}
	return scanCancelKey
}

// channelFor returns the pub/sub channel for one job's progress stream.
func channelFor(kind JobKind, jobID string) string {
	return fmt.Sprintf("soc:%s:%s", kind, jobID)
}

// ChannelPattern returns the PSUBSCRIBE pattern covering all jobs of a kind.
func ChannelPattern(kind JobKind) string {
	return fmt.Sprintf("soc:%s:*", kind)
}

// Scheduler is the shared job-coordination substrate. All operations are
// single Redis round-trips; datastore unavailability surfaces as an error
// to the caller, never retried here.
type Scheduler struct {
	rdb *redis.Client
	log *slog.Logger
}

// New creates a scheduler on top of an existing Redis client.
func New(rdb *redis.Client, log *slog.Logger) *Scheduler {
	return &Scheduler{rdb: rdb, log: log}
}

// Enqueue pushes a job ID onto the tail of its kind's queue.
func (s *Scheduler) Enqueue(ctx context.Context, kind JobKind, jobID string) error {
	if err := s.rdb.RPush(ctx, kind.queueKey(), jobID).Err(); err != nil {
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	s.log.Info("job enqueued", slog.String("kind", string(kind)), slog.String("job_id", jobID))
	return nil
}

// Dequeue blocks up to timeout for the next job ID. Returns "" with a nil
// error when the timeout elapses with no work.
func (s *Scheduler) Dequeue(ctx context.Context, kind JobKind, timeout time.Duration) (string, error) {
	res, err := s.rdb.BLPop(ctx, timeout, kind.queueKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dequeue %s job: %w", kind, err)
	}
	// BLPOP returns [key, value].
	return res[1], nil
}

// Cancel marks a job as cancelled. The owning worker observes the flag at
// its next progress checkpoint; running tool invocations are not killed.
func (s *Scheduler) Cancel(ctx context.Context, kind JobKind, jobID string) error {
	if err := s.rdb.SAdd(ctx, kind.cancelKey(), jobID).Err(); err != nil {
		return fmt.Errorf("cancel %s job: %w", kind, err)
	}
	return nil
}

// IsCancelled reports whether a cancel has been requested for the job.
func (s *Scheduler) IsCancelled(ctx context.Context, kind JobKind, jobID string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, kind.cancelKey(), jobID).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel for %s job: %w", kind, err)
	}
	return ok, nil
}

// ClearCancel removes the job from the cancel set, acknowledging the cancel.
func (s *Scheduler) ClearCancel(ctx context.Context, kind JobKind, jobID string) error {
	if err := s.rdb.SRem(ctx, kind.cancelKey(), jobID).Err(); err != nil {
		return fmt.Errorf("clear cancel for %s job: %w", kind, err)
	}
	return nil
}

// PublishProgress JSON-encodes payload and publishes it on the job's
// channel. Delivery is best-effort pub/sub: subscribers that are not
// listening miss the message.
func (s *Scheduler) PublishProgress(ctx context.Context, kind JobKind, jobID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode progress payload: %w", err)
	}
	if err := s.rdb.Publish(ctx, channelFor(kind, jobID), data).Err(); err != nil {
		return fmt.Errorf("publish progress for %s job: %w", kind, err)
	}
	return nil
}

// Subscribe opens a pattern subscription over all progress channels of the
// given kinds. The caller owns the returned PubSub and must Close it.
func (s *Scheduler) Subscribe(ctx context.Context, kinds ...JobKind) *redis.PubSub {
	patterns := make([]string, len(kinds))
	for i, k := range kinds {
		patterns[i] = ChannelPattern(k)
	}
	return s.rdb.PSubscribe(ctx, patterns...)
}
