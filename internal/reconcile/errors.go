package reconcile

import "fmt"

// Validation reasons.
const (
	ReasonMissingShiftStart       = "missing_shift_start"
	ReasonNegativeCount           = "negative_count"
	ReasonMissingDiscrepancyNotes = "missing_discrepancy_notes"
)

// ValidationError is a local, field-level rejection of a submission.
// It must block the submission and is never sent upstream.
type ValidationError struct {
	Reason string
	// Field is the offending tender or form field; empty when the reason
	// is not tied to one field.
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s (%s)", e.Reason, e.Field)
}
