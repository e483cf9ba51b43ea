package reconcile

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"gymdesk/internal/model"
	"gymdesk/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// shiftStartLayouts are tried in order. Zone-less layouts are read in the
// business location.
var shiftStartLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
}

// ParseShiftStart parses an ISO-8601 shift start. Blank input is an error.
func ParseShiftStart(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty shift_start")
	}
	if loc == nil {
		loc = time.UTC
	}
	var lastErr error
	for _, l := range shiftStartLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// countRules mirrors model.TenderAmounts with validator tags. The tender tag
// names the field in ValidationError.
type countRules struct {
	Cash        decimal.Decimal `tender:"cash"        validate:"decimal_gte0"`
	Nequi       decimal.Decimal `tender:"nequi"       validate:"decimal_gte0"`
	Bancolombia decimal.Decimal `tender:"bancolombia" validate:"decimal_gte0"`
	Daviplata   decimal.Decimal `tender:"daviplata"   validate:"decimal_gte0"`
	Card        decimal.Decimal `tender:"card"        validate:"decimal_gte0"`
	Transfer    decimal.Decimal `tender:"transfer"    validate:"decimal_gte0"`
}

func newValidator() *validator.Validate {
	v := validation.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("tender")
	})
	return v
}

// ValidateSubmission checks a count before anything is fetched or sent.
// No upper bound is imposed: a drawer may legitimately hold more than the
// recorded sales.
func (r *Reconciler) ValidateSubmission(shiftStart string, count model.PhysicalCount) error {
	if _, err := ParseShiftStart(shiftStart, r.loc); err != nil {
		return &ValidationError{Reason: ReasonMissingShiftStart}
	}

	c := count.Counted
	rules := countRules{
		Cash:        c.Cash,
		Nequi:       c.Nequi,
		Bancolombia: c.Bancolombia,
		Daviplata:   c.Daviplata,
		Card:        c.Card,
		Transfer:    c.Transfer,
	}
	if err := r.validate.Struct(rules); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			// field order follows the struct, i.e. canonical tender order
			return &ValidationError{Reason: ReasonNegativeCount, Field: fieldErrs[0].Field()}
		}
		return err
	}
	return nil
}

// RequireDiscrepancyNotes rejects a count that shows a variance but carries
// no explanation.
func RequireDiscrepancyNotes(diff DifferenceSet, count model.PhysicalCount) error {
	if HasDiscrepancy(diff) && strings.TrimSpace(count.DiscrepancyNotes) == "" {
		return &ValidationError{Reason: ReasonMissingDiscrepancyNotes, Field: "discrepancy_notes"}
	}
	return nil
}
