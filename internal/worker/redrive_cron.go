package worker

// redrive_cron.go
// Background goroutine that periodically moves dead-lettered alert jobs back
// onto their queue, so alerts lost to an SMTP outage go out once it recovers.

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	redriveBatchSize = 20
	maxRedrives      = 3
)

// StartRedriveCron ticks every interval until ctx is done. A non-positive
// interval disables it.
func StartRedriveCron(ctx context.Context, q Queue, interval time.Duration) {
	if interval <= 0 {
		log.Info().Msg("redrive_cron: disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("redrive_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("redrive_cron: shutting down")
				return
			case <-ticker.C:
				redriveOnce(ctx, q)
			}
		}
	}()
}

func redriveOnce(ctx context.Context, q Queue) {
	n, err := Redrive(ctx, q, QueueAlerts, redriveBatchSize, maxRedrives)
	if err != nil {
		log.Error().Err(err).Msg("redrive_cron: redrive failed")
	}
	if n == 0 {
		return
	}
	left, err := DLQLength(ctx, q, QueueAlerts)
	if err != nil {
		log.Warn().Err(err).Msg("redrive_cron: could not read DLQ length")
	}
	log.Info().Int("count", n).Int64("left", left).Msg("redrive_cron: jobs moved back from DLQ")
}
