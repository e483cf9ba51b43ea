package worker

// alert_worker.go
// Mails supervisors when a submitted closure does not reconcile.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gymdesk/internal/events"
	"gymdesk/internal/infra"
	"gymdesk/internal/model"

	"github.com/rs/zerolog/log"
)

// AlertPayload is the job payload on QueueAlerts. Amounts are decimal
// strings.
type AlertPayload struct {
	ClosureID        string            `json:"closure_id"`
	UserID           string            `json:"user_id"`
	Username         string            `json:"username"`
	ShiftDate        string            `json:"shift_date"`
	Differences      map[string]string `json:"differences"`
	Total            string            `json:"total"`
	Percent          string            `json:"percent"`
	Severity         string            `json:"severity"`
	DiscrepancyNotes string            `json:"discrepancy_notes"`
}

// NewAlertPayload builds the payload from a closure.submitted event.
func NewAlertPayload(e events.Event) AlertPayload {
	p := AlertPayload{
		ClosureID:        e.Closure.ID,
		UserID:           e.UserID,
		Username:         e.Username,
		ShiftDate:        e.Closure.ShiftDate,
		Differences:      make(map[string]string, len(model.Tenders)),
		Total:            e.Differences.Total.StringFixed(2),
		Percent:          e.Deviation.Percent.StringFixed(2),
		Severity:         string(e.Deviation.Severity),
		DiscrepancyNotes: e.Closure.Count.DiscrepancyNotes,
	}
	for _, t := range model.Tenders {
		p.Differences[string(t)] = e.Differences.ByTender.Get(t).StringFixed(2)
	}
	return p
}

// Sender is implemented by *infra.Mailer.
type Sender interface {
	Send(to []string, subject, body string) error
}

type AlertWorker struct {
	mailer     Sender
	recipients []string
}

func NewAlertWorker(mailer Sender, recipients []string) *AlertWorker {
	return &AlertWorker{mailer: mailer, recipients: recipients}
}

// Process mails the alert. With SMTP or recipients unconfigured the job is
// logged and dropped instead of retried.
func (w *AlertWorker) Process(_ context.Context, raw json.RawMessage) error {
	var p AlertPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Msg("alert_worker: invalid payload")
		return nil
	}
	if len(w.recipients) == 0 {
		log.Warn().Str("closure_id", p.ClosureID).Msg("alert_worker: no ALERT_RECIPIENTS, skipping")
		return nil
	}

	subject := fmt.Sprintf("Cierre de caja con descuadre: %s (%s)", p.Username, p.ShiftDate)
	err := w.mailer.Send(w.recipients, subject, renderAlert(p))
	if errors.Is(err, infra.ErrMailerDisabled) {
		log.Warn().Str("closure_id", p.ClosureID).Msg("alert_worker: smtp disabled, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("closure_id", p.ClosureID).Strs("to", w.recipients).Msg("alert_worker: discrepancy alert sent")
	return nil
}

func renderAlert(p AlertPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Operador: %s (id %s)\n", p.Username, p.UserID)
	fmt.Fprintf(&b, "Fecha de turno: %s\n", p.ShiftDate)
	if p.ClosureID != "" {
		fmt.Fprintf(&b, "Cierre: %s\n", p.ClosureID)
	}
	b.WriteString("\nDiferencias (contado - sistema):\n")
	for _, t := range model.Tenders {
		fmt.Fprintf(&b, "  %-12s %14s\n", t, p.Differences[string(t)])
	}
	fmt.Fprintf(&b, "  %-12s %14s\n", "total", p.Total)
	fmt.Fprintf(&b, "\nDesvio: %s%% (%s)\n", p.Percent, p.Severity)
	if p.DiscrepancyNotes != "" {
		fmt.Fprintf(&b, "\nNotas del operador:\n%s\n", p.DiscrepancyNotes)
	}
	return b.String()
}

// AlertEnqueuer is implemented by *Dispatcher.
type AlertEnqueuer interface {
	EnqueueAlert(ctx context.Context, payload AlertPayload) error
}

// SubscribeDiscrepancyAlerts enqueues an alert job for every submitted
// closure that does not reconcile.
func SubscribeDiscrepancyAlerts(bus *events.Bus, q AlertEnqueuer) (unsubscribe func()) {
	return bus.Subscribe(events.TopicClosureSubmitted, func(ctx context.Context, e events.Event) {
		if !e.HasDiscrepancy {
			return
		}
		// the request may finish before Redis answers
		if err := q.EnqueueAlert(context.WithoutCancel(ctx), NewAlertPayload(e)); err != nil {
			log.Error().Err(err).Str("closure_id", e.Closure.ID).Msg("alert: enqueue failed")
		}
	})
}
