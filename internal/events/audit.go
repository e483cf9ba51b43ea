package events

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SubscribeAuditLog writes one structured log line per closure event.
// The returned func removes every subscription it made.
func SubscribeAuditLog(bus *Bus) (unsubscribe func()) {
	handler := func(_ context.Context, e Event) {
		var ev *zerolog.Event
		switch e.Topic {
		case TopicClosureSubmitted:
			ev = log.Info().
				Str("closure_id", e.Closure.ID).
				Str("shift_date", e.Closure.ShiftDate).
				Str("status", string(e.Closure.Status)).
				Str("total_difference", e.Differences.Total.StringFixed(2)).
				Bool("discrepancy", e.HasDiscrepancy).
				Str("severity", string(e.Deviation.Severity))
		default:
			ev = log.Warn().Err(e.Err)
		}
		ev.Str("topic", string(e.Topic)).Str("user_id", e.UserID).Msg("cierre event")
	}

	unsubs := []func(){
		bus.Subscribe(TopicClosureSubmitted, handler),
		bus.Subscribe(TopicClosureFailed, handler),
		bus.Subscribe(TopicSummaryUnavailable, handler),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
