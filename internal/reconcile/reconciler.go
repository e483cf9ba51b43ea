// Package reconcile holds the cash-closure reconciliation core: it compares
// what the system recorded for a shift against what the operator physically
// counted and decides what the closure record must look like.
//
// Everything here is pure computation. Fetching the sales summary and
// persisting the closure belong to the caller.
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"gymdesk/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DifferenceSet is counted minus recorded, per tender and in total.
// Positive is an overage, negative a shortage.
type DifferenceSet struct {
	ByTender model.TenderAmounts
	Total    decimal.Decimal
}

// Shift identifies whose closure is being built and when the shift began.
type Shift struct {
	UserID string
	Start  time.Time
}

// Reconciler is safe for concurrent use.
type Reconciler struct {
	loc      *time.Location
	now      func() time.Time
	validate *validator.Validate
}

// NewReconciler builds a Reconciler. loc decides which calendar day a shift
// belongs to; nil means UTC. now defaults to time.Now.
func NewReconciler(loc *time.Location, now func() time.Time) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{loc: loc, now: now, validate: newValidator()}
}

// Location returns the business time zone.
func (r *Reconciler) Location() *time.Location { return r.loc }

// Now is the reconciler's clock, in the business time zone.
func (r *Reconciler) Now() time.Time { return r.now().In(r.loc) }

// ShiftDate returns the closure key date for a shift start.
func (r *Reconciler) ShiftDate(start time.Time) string {
	return start.In(r.loc).Format(model.ShiftDateLayout)
}

// ComputeDifferences never fails and never rounds: amounts are exact decimals.
func ComputeDifferences(summary model.ShiftSalesSummary, count model.PhysicalCount) DifferenceSet {
	var diff DifferenceSet
	total := decimal.Zero
	for _, t := range model.Tenders {
		d := count.Counted.Get(t).Sub(summary.Sales.Get(t))
		diff.ByTender.Set(t, d)
		total = total.Add(d)
	}
	diff.Total = total
	return diff
}

// HasDiscrepancy is true when any tender does not reconcile. It is a signal
// for the operator and reviewer, independent from the closure status.
func HasDiscrepancy(diff DifferenceSet) bool {
	if !diff.Total.IsZero() {
		return true
	}
	for _, t := range model.Tenders {
		if !diff.ByTender.Get(t).IsZero() {
			return true
		}
	}
	return false
}

// DeriveStatus returns the status a closure carries when it is created.
// Discrepancy handling is a reviewer decision made outside this service, so
// the result is pending whatever the differences are.
func DeriveStatus(_ DifferenceSet) model.ClosureStatus {
	return model.ClosureStatusPending
}

// UpsertClosure merges a fresh summary and count into today's closure.
//
// existing == nil, or an existing record that belongs to another user or
// another shift date, yields a new pending closure. A record with no user id
// is the operator's own: the store only returns today's closure for the
// requesting user. Otherwise the sales snapshot and the count move forward
// while ID, CreatedAt and the review fields are kept; a status set by a
// reviewer is never reset.
func (r *Reconciler) UpsertClosure(existing *model.CashClosure, shift Shift, summary model.ShiftSalesSummary, count model.PhysicalCount) model.CashClosure {
	now := r.now()
	shiftDate := r.ShiftDate(shift.Start)

	if existing == nil || !sameShift(existing, shift.UserID, shiftDate) {
		return model.CashClosure{
			UserID:     shift.UserID,
			ShiftDate:  shiftDate,
			ShiftStart: shift.Start,
			ShiftEnd:   now,
			Sales:      summary,
			Count:      count,
			Status:     DeriveStatus(ComputeDifferences(summary, count)),
			CreatedAt:  now,
		}
	}

	closure := *existing
	closure.UserID = shift.UserID
	closure.ShiftDate = shiftDate
	closure.ShiftStart = shift.Start
	closure.ShiftEnd = now
	closure.Sales = summary
	closure.Count = count
	if closure.Status == "" {
		closure.Status = model.ClosureStatusPending
	}
	if next := DeriveStatus(ComputeDifferences(summary, count)); CanTransition(closure.Status, next) {
		closure.Status = next
	}
	return closure
}

func sameShift(c *model.CashClosure, userID, shiftDate string) bool {
	if c.UserID != "" && c.UserID != userID {
		return false
	}
	date, err := CalendarDate(c.ShiftDate)
	return err == nil && date == shiftDate
}

// CalendarDate reduces a stored shift date to YYYY-MM-DD. Stores that
// serialise the date column as a timestamp append a time part; it is dropped
// without any zone conversion.
func CalendarDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	n := len(model.ShiftDateLayout)
	if len(s) > n && (s[n] == 'T' || s[n] == ' ') {
		s = s[:n]
	}
	if _, err := time.Parse(model.ShiftDateLayout, s); err != nil {
		return "", fmt.Errorf("shift date %q: %w", s, err)
	}
	return s, nil
}
