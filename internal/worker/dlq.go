package worker

// Dead letter queue: jobs that exhausted their attempts are parked in
// dlq:{original_queue} for inspection or redrive.

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// DLQEntry wraps a failed job with metadata for debugging.
type DLQEntry struct {
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      string          `json:"failed_at"` // RFC 3339
	Attempts      int             `json:"attempts"`
	Redriven      int             `json:"redriven,omitempty"`
}

// SendToDLQ pushes a failed job to the dead letter queue.
func SendToDLQ(ctx context.Context, q Queue, queue, jobType string, payload json.RawMessage, reason string, attempts int) {
	pushDLQ(ctx, q, DLQEntry{
		OriginalQueue: queue,
		JobType:       jobType,
		Payload:       payload,
		Reason:        reason,
		FailedAt:      time.Now().UTC().Format(time.RFC3339),
		Attempts:      attempts,
	})
}

func pushDLQ(ctx context.Context, q Queue, entry DLQEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", entry.OriginalQueue).Msg("dlq: failed to marshal entry")
		return
	}

	dlqKey := DLQPrefix + entry.OriginalQueue
	// the job already failed; parking it must survive a cancelled request ctx
	if err := q.LPush(context.WithoutCancel(ctx), dlqKey, data).Err(); err != nil {
		log.Error().Err(err).Str("dlq_key", dlqKey).Msg("dlq: failed to push to DLQ")
		return
	}

	log.Warn().
		Str("queue", entry.OriginalQueue).
		Str("job_type", entry.JobType).
		Str("reason", entry.Reason).
		Int("attempts", entry.Attempts).
		Msg("dlq: job moved to dead letter queue")
}

// DLQLength returns the number of entries in a DLQ for monitoring.
func DLQLength(ctx context.Context, q Queue, queue string) (int64, error) {
	return q.LLen(ctx, DLQPrefix+queue).Result()
}

// Redrive moves up to max entries from dlq:{queue} back to queue, oldest
// first. Entries already redriven maxRedrives times stay parked.
func Redrive(ctx context.Context, q Queue, queue string, max, maxRedrives int) (int, error) {
	dlqKey := DLQPrefix + queue
	pending, err := q.LLen(ctx, dlqKey).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for i := int64(0); i < pending && moved < max; i++ {
		raw, err := q.RPop(ctx, dlqKey).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, err
		}

		var entry DLQEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.JobType == "" {
			log.Error().Str("dlq_key", dlqKey).Msg("dlq: dropping unreadable entry")
			continue
		}
		if entry.Redriven >= maxRedrives {
			if err := q.LPush(ctx, dlqKey, raw).Err(); err != nil {
				return moved, err
			}
			continue
		}

		job, err := json.Marshal(Job{
			ID:         uuid.NewString(),
			Type:       entry.JobType,
			Payload:    entry.Payload,
			EnqueuedAt: time.Now().UTC(),
			Redriven:   entry.Redriven + 1,
		})
		if err != nil {
			return moved, err
		}
		if err := q.LPush(ctx, queue, job).Err(); err != nil {
			_ = q.LPush(context.WithoutCancel(ctx), dlqKey, raw).Err()
			return moved, err
		}
		moved++
	}
	return moved, nil
}
