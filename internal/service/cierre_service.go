package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gymdesk/internal/backend"
	"gymdesk/internal/dto"
	"gymdesk/internal/events"
	"gymdesk/internal/model"
	"gymdesk/internal/reconcile"
	"gymdesk/internal/repository"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Backend is the part of the REST backend the closure flow talks to.
// *backend.Client implements it.
type Backend interface {
	ShiftSummary(ctx context.Context, shiftStart time.Time) (model.ShiftSalesSummary, error)
	ShiftItems(ctx context.Context, shiftStart time.Time) (model.ItemsSoldSummary, error)
	TodayClosure(ctx context.Context) (*model.CashClosure, error)
	SaveClosure(ctx context.Context, closure model.CashClosure) (model.CashClosure, error)
	ClosurePDF(ctx context.Context, id string) (io.ReadCloser, string, error)
}

var _ Backend = (*backend.Client)(nil)

// Operator is the authenticated front-desk user closing the shift.
type Operator struct {
	UserID   string
	Username string
}

// ErrNoDraft is returned by Borrador when nothing was saved for the shift.
var ErrNoDraft = errors.New("no hay borrador guardado para este turno")

type CierreService interface {
	Resumen(ctx context.Context, op Operator, shiftStart string) (*dto.ResumenResponse, error)
	Preview(ctx context.Context, op Operator, req dto.CierreRequest) (*dto.PreviewResponse, error)
	Cerrar(ctx context.Context, op Operator, req dto.CierreRequest) (*dto.CierreResponse, error)
	// Hoy returns nil, nil when the operator has not closed today.
	Hoy(ctx context.Context, op Operator) (*dto.CierreResponse, error)
	// Borrador looks up the draft of the shift that started at shiftStart,
	// or of today's shift when shiftStart is empty.
	Borrador(ctx context.Context, op Operator, shiftStart string) (*dto.BorradorResponse, error)
	PDF(ctx context.Context, id string) (io.ReadCloser, string, error)
}

// CierreOptions carries the policy switches of the closure flow.
type CierreOptions struct {
	RequireDiscrepancyNotes bool
}

type cierreService struct {
	backend    Backend
	drafts     repository.DraftRepository
	reconciler *reconcile.Reconciler
	bus        *events.Bus
	opts       CierreOptions
}

func NewCierreService(
	b Backend,
	drafts repository.DraftRepository,
	reconciler *reconcile.Reconciler,
	bus *events.Bus,
	opts CierreOptions,
) CierreService {
	return &cierreService{backend: b, drafts: drafts, reconciler: reconciler, bus: bus, opts: opts}
}

// ── Resumen ──────────────────────────────────────────────────────────────────

func (s *cierreService) Resumen(ctx context.Context, op Operator, shiftStart string) (*dto.ResumenResponse, error) {
	start, err := reconcile.ParseShiftStart(shiftStart, s.reconciler.Location())
	if err != nil {
		return nil, &reconcile.ValidationError{Reason: reconcile.ReasonMissingShiftStart}
	}
	summary, items, err := s.fetchShift(ctx, op, start)
	if err != nil {
		return nil, err
	}
	resp := &dto.ResumenResponse{
		ShiftStart: formatTime(start, s.reconciler.Location()),
		ShiftDate:  s.reconciler.ShiftDate(start),
		Ventas:     dto.NewVentasTurno(summary),
	}
	if items != nil {
		resp.Items = dto.NewItemsVendidos(*items)
	}
	return resp, nil
}

// fetchShift loads the summary and the items report concurrently. Items are
// display-only: their failure is logged and yields nil items.
func (s *cierreService) fetchShift(ctx context.Context, op Operator, start time.Time) (model.ShiftSalesSummary, *model.ItemsSoldSummary, error) {
	var (
		summary model.ShiftSalesSummary
		items   *model.ItemsSoldSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.backend.ShiftSummary(gctx, start)
		return err
	})
	g.Go(func() error {
		it, err := s.backend.ShiftItems(gctx, start)
		if err != nil {
			log.Warn().Err(err).Str("user_id", op.UserID).Msg("cierre: items report unavailable")
			return nil
		}
		items = &it
		return nil
	})
	if err := g.Wait(); err != nil {
		s.publishUnavailable(ctx, op, err)
		return model.ShiftSalesSummary{}, nil, err
	}
	return summary, items, nil
}

// ── Preview ──────────────────────────────────────────────────────────────────

func (s *cierreService) Preview(ctx context.Context, op Operator, req dto.CierreRequest) (*dto.PreviewResponse, error) {
	count := req.Count()
	start, err := s.validate(req.ShiftStart, count)
	if err != nil {
		return nil, err
	}
	s.saveDraft(ctx, op, start, count)

	summary, items, err := s.fetchShift(ctx, op, start)
	if err != nil {
		return nil, err
	}

	diff := reconcile.ComputeDifferences(summary, count)
	resp := &dto.PreviewResponse{
		ShiftStart:     formatTime(start, s.reconciler.Location()),
		ShiftDate:      s.reconciler.ShiftDate(start),
		Ventas:         dto.NewVentasTurno(summary),
		Contado:        dto.NewMontos(count.Counted, count.Counted.Sum()),
		Diferencias:    dto.NewMontos(diff.ByTender, diff.Total),
		HasDiscrepancy: reconcile.HasDiscrepancy(diff),
		Desvio:         desvio(reconcile.Classify(summary, diff)),
	}
	if items != nil {
		resp.Items = dto.NewItemsVendidos(*items)
	}
	return resp, nil
}

// ── Cierre ───────────────────────────────────────────────────────────────────

// Cerrar runs the full submission: validate, keep the draft, fetch a fresh
// summary and today's closure, upsert, persist, then notify. Any failure
// leaves the draft in place so the same count can be resubmitted.
func (s *cierreService) Cerrar(ctx context.Context, op Operator, req dto.CierreRequest) (*dto.CierreResponse, error) {
	count := req.Count()
	start, err := s.validate(req.ShiftStart, count)
	if err != nil {
		return nil, err
	}
	s.saveDraft(ctx, op, start, count)

	var (
		summary  model.ShiftSalesSummary
		existing *model.CashClosure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.backend.ShiftSummary(gctx, start)
		return err
	})
	g.Go(func() error {
		var err error
		existing, err = s.backend.TodayClosure(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, backend.ErrSummaryUnavailable) {
			s.publishUnavailable(ctx, op, err)
		} else {
			s.publishFailed(ctx, op, err)
		}
		return nil, err
	}

	diff := reconcile.ComputeDifferences(summary, count)
	if s.opts.RequireDiscrepancyNotes {
		if err := reconcile.RequireDiscrepancyNotes(diff, count); err != nil {
			return nil, err
		}
	}

	closure := s.reconciler.UpsertClosure(existing, reconcile.Shift{UserID: op.UserID, Start: start}, summary, count)
	saved, err := s.backend.SaveClosure(ctx, closure)
	if err != nil {
		s.publishFailed(ctx, op, err)
		return nil, err
	}
	closure = mergeStored(closure, saved)

	if err := s.drafts.Delete(ctx, op.UserID, closure.ShiftDate); err != nil {
		log.Warn().Err(err).Str("user_id", op.UserID).Msg("cierre: no se pudo borrar el borrador")
	}

	dev := reconcile.Classify(summary, diff)
	s.bus.Publish(ctx, events.Event{
		Topic:          events.TopicClosureSubmitted,
		UserID:         op.UserID,
		Username:       op.Username,
		Closure:        closure,
		Differences:    diff,
		Deviation:      dev,
		HasDiscrepancy: reconcile.HasDiscrepancy(diff),
	})

	return s.toCierreResponse(closure), nil
}

// mergeStored takes identity and review fields from what the store answered
// and keeps the amounts that were sent, so a terse store reply does not blank
// the response.
func mergeStored(sent, stored model.CashClosure) model.CashClosure {
	out := sent
	if stored.ID != "" {
		out.ID = stored.ID
	}
	if stored.Status != "" {
		out.Status = stored.Status
	}
	if !stored.CreatedAt.IsZero() {
		out.CreatedAt = stored.CreatedAt
	}
	if stored.ReviewedBy != nil {
		out.ReviewedBy = stored.ReviewedBy
	}
	if stored.ReviewedAt != nil {
		out.ReviewedAt = stored.ReviewedAt
	}
	return out
}

// ── Hoy / Borrador / PDF ─────────────────────────────────────────────────────

func (s *cierreService) Hoy(ctx context.Context, op Operator) (*dto.CierreResponse, error) {
	closure, err := s.backend.TodayClosure(ctx)
	if err != nil {
		return nil, err
	}
	if closure == nil {
		return nil, nil
	}
	if closure.UserID != "" && closure.UserID != op.UserID {
		return nil, nil
	}
	return s.toCierreResponse(*closure), nil
}

func (s *cierreService) Borrador(ctx context.Context, op Operator, shiftStart string) (*dto.BorradorResponse, error) {
	shiftDate := s.reconciler.Now().Format(model.ShiftDateLayout)
	if shiftStart != "" {
		start, err := reconcile.ParseShiftStart(shiftStart, s.reconciler.Location())
		if err != nil {
			return nil, &reconcile.ValidationError{Reason: reconcile.ReasonMissingShiftStart}
		}
		shiftDate = s.reconciler.ShiftDate(start)
	}

	d, err := s.drafts.Find(ctx, op.UserID, shiftDate)
	if err != nil {
		return nil, fmt.Errorf("leyendo borrador: %w", err)
	}
	if d == nil {
		return nil, ErrNoDraft
	}
	loc := s.reconciler.Location()
	return &dto.BorradorResponse{
		ShiftDate:        d.ShiftDate,
		ShiftStart:       formatTime(d.ShiftStart, loc),
		Contado:          dto.NewMontos(d.Count.Counted, d.Count.Counted.Sum()),
		Notes:            d.Count.Notes,
		DiscrepancyNotes: d.Count.DiscrepancyNotes,
		SavedAt:          formatTime(d.SavedAt, loc),
	}, nil
}

func (s *cierreService) PDF(ctx context.Context, id string) (io.ReadCloser, string, error) {
	return s.backend.ClosurePDF(ctx, id)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *cierreService) validate(shiftStart string, count model.PhysicalCount) (time.Time, error) {
	if err := s.reconciler.ValidateSubmission(shiftStart, count); err != nil {
		return time.Time{}, err
	}
	return reconcile.ParseShiftStart(shiftStart, s.reconciler.Location())
}

// saveDraft is best effort: a draft store outage must not block a closure.
func (s *cierreService) saveDraft(ctx context.Context, op Operator, start time.Time, count model.PhysicalCount) {
	d := model.Draft{
		UserID:     op.UserID,
		ShiftDate:  s.reconciler.ShiftDate(start),
		ShiftStart: start,
		Count:      count,
		SavedAt:    s.reconciler.Now(),
	}
	if err := s.drafts.Save(ctx, d); err != nil {
		log.Warn().Err(err).Str("user_id", op.UserID).Msg("cierre: no se pudo guardar el borrador")
	}
}

func (s *cierreService) publishUnavailable(ctx context.Context, op Operator, err error) {
	s.bus.Publish(ctx, events.Event{Topic: events.TopicSummaryUnavailable, UserID: op.UserID, Username: op.Username, Err: err})
}

func (s *cierreService) publishFailed(ctx context.Context, op Operator, err error) {
	s.bus.Publish(ctx, events.Event{Topic: events.TopicClosureFailed, UserID: op.UserID, Username: op.Username, Err: err})
}

func (s *cierreService) toCierreResponse(c model.CashClosure) *dto.CierreResponse {
	loc := s.reconciler.Location()
	diff := reconcile.ComputeDifferences(c.Sales, c.Count)
	resp := &dto.CierreResponse{
		ID:               c.ID,
		UserID:           c.UserID,
		ShiftDate:        c.ShiftDate,
		ShiftStart:       formatTime(c.ShiftStart, loc),
		ShiftEnd:         formatTime(c.ShiftEnd, loc),
		Status:           string(c.Status),
		Final:            reconcile.IsTerminal(c.Status),
		Ventas:           dto.NewVentasTurno(c.Sales),
		Contado:          dto.NewMontos(c.Count.Counted, c.Count.Counted.Sum()),
		Diferencias:      dto.NewMontos(diff.ByTender, diff.Total),
		HasDiscrepancy:   reconcile.HasDiscrepancy(diff),
		Desvio:           desvio(reconcile.Classify(c.Sales, diff)),
		Notes:            c.Count.Notes,
		DiscrepancyNotes: c.Count.DiscrepancyNotes,
		CreatedAt:        formatTime(c.CreatedAt, loc),
		ReviewedBy:       c.ReviewedBy,
	}
	if c.ReviewedAt != nil {
		at := formatTime(*c.ReviewedAt, loc)
		resp.ReviewedAt = &at
	}
	return resp
}

func desvio(d reconcile.Deviation) dto.DesvioResponse {
	return dto.DesvioResponse{Monto: d.Amount, Porcentaje: d.Percent, Clasificacion: string(d.Severity)}
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}
