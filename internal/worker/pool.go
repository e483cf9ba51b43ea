package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueAlerts = "jobs:cierre_alerts"

	JobTypeDiscrepancyAlert = "discrepancy_alert"
)

// Queue is the subset of *redis.Client the pool and the DLQ use.
type Queue interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// Job is the envelope stored in a Redis list.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	// Redriven counts how many times the job came back from the DLQ.
	Redriven int `json:"redriven,omitempty"`
}

// JobHandler processes one job payload. A returned error is retried and
// then dead-lettered; return nil for jobs that can never succeed.
type JobHandler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// Dispatcher enqueues jobs; the pool dequeues them via BRPOP.
type Dispatcher struct {
	q Queue
}

func NewDispatcher(q Queue) *Dispatcher {
	return &Dispatcher{q: q}
}

// EnqueueAlert pushes a discrepancy alert job.
func (d *Dispatcher) EnqueueAlert(ctx context.Context, payload AlertPayload) error {
	return d.enqueue(ctx, QueueAlerts, JobTypeDiscrepancyAlert, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := d.q.LPush(ctx, queue, encoded).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return nil
}

// PoolConfig configures StartWorkerPool.
type PoolConfig struct {
	Workers  int
	Handlers map[string]JobHandler
	// MaxAttempts per job before it is dead-lettered, default 3.
	MaxAttempts int
	// Backoff is the wait before retry n (n >= 1).
	Backoff func(attempt int) time.Duration
	// PollTimeout bounds each BRPOP so shutdown is noticed, default 5s.
	PollTimeout time.Duration
}

func defaultBackoff(attempt int) time.Duration {
	// 1s, 2s, 4s …
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// StartWorkerPool launches cfg.Workers goroutines consuming QueueAlerts.
// Each one blocks on BRPOP and exits when ctx is cancelled; the returned
// WaitGroup lets main wait for in-flight jobs on shutdown.
func StartWorkerPool(ctx context.Context, q Queue, cfg PoolConfig) *sync.WaitGroup {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = defaultBackoff
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(ctx, q, cfg, id)
		}(i)
	}
	log.Info().Msgf("worker pool started with %d workers", cfg.Workers)
	return &wg
}

func runWorker(ctx context.Context, q Queue, cfg PoolConfig, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
		}

		result, err := q.BRPop(ctx, cfg.PollTimeout, QueueAlerts).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn().Err(err).Int("worker", id).Msg("worker: brpop failed")
				sleep(ctx, time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}
		processJob(ctx, q, cfg, result[0], result[1])
	}
}

func processJob(ctx context.Context, q Queue, cfg PoolConfig, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		// keep the raw text as a JSON string so the entry stays valid JSON
		quoted, _ := json.Marshal(raw)
		SendToDLQ(ctx, q, queue, "", quoted, "malformed job: "+err.Error(), 0)
		return
	}

	h, ok := cfg.Handlers[job.Type]
	if !ok {
		SendToDLQ(ctx, q, queue, job.Type, job.Payload, "no handler for job type", 0)
		return
	}

	attempts, err := withRetry(ctx, cfg.MaxAttempts, cfg.Backoff, func(attempt int) error {
		err := h.Process(ctx, job.Payload)
		if err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Str("type", job.Type).Int("attempt", attempt+1).Msg("job attempt failed")
		}
		return err
	})
	if err != nil {
		pushDLQ(ctx, q, DLQEntry{
			OriginalQueue: queue,
			JobType:       job.Type,
			Payload:       job.Payload,
			Reason:        err.Error(),
			FailedAt:      time.Now().UTC().Format(time.RFC3339),
			Attempts:      attempts,
			Redriven:      job.Redriven,
		})
		return
	}
	log.Info().Str("job_id", job.ID).Str("type", job.Type).Int("attempts", attempts).Msg("job processed")
}

// withRetry calls fn up to maxAttempts times, waiting backoff(i) before the
// i-th retry. It returns the number of attempts made and the last error.
func withRetry(ctx context.Context, maxAttempts int, backoff func(int) time.Duration, fn func(attempt int) error) (int, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 && !sleep(ctx, backoff(i)) {
			return i, ctx.Err()
		}
		if lastErr = fn(i); lastErr == nil {
			return i + 1, nil
		}
	}
	return maxAttempts, lastErr
}

// sleep waits d or until ctx is done; false means ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
