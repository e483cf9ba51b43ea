package reconcile

import (
	"gymdesk/internal/model"

	"github.com/shopspring/decimal"
)

// Severity of a deviation: "normal" | "warning" | "critical"
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var (
	hundred          = decimal.NewFromInt(100)
	normalThreshold  = decimal.NewFromInt(1)
	warningThreshold = decimal.NewFromInt(5)
)

// Deviation sizes the total difference relative to recorded sales.
// Advisory only: it never feeds the closure status.
type Deviation struct {
	Amount   decimal.Decimal
	Percent  decimal.Decimal
	Severity Severity
}

// Classify returns normal for |pct| <= 1, warning for <= 5, critical above.
// A non-zero difference over zero recorded sales is critical.
func Classify(summary model.ShiftSalesSummary, diff DifferenceSet) Deviation {
	dev := Deviation{Amount: diff.Total}

	if summary.TotalSales.IsZero() {
		dev.Severity = SeverityNormal
		if !diff.Total.IsZero() {
			dev.Severity = SeverityCritical
		}
		return dev
	}

	dev.Percent = diff.Total.Div(summary.TotalSales).Mul(hundred).Round(2)
	abs := dev.Percent.Abs()
	switch {
	case abs.LessThanOrEqual(normalThreshold):
		dev.Severity = SeverityNormal
	case abs.LessThanOrEqual(warningThreshold):
		dev.Severity = SeverityWarning
	default:
		dev.Severity = SeverityCritical
	}
	return dev
}
