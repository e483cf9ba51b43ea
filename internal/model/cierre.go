package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ShiftSalesSummary is the aggregator's snapshot of what the system recorded
// for a shift. TotalSales == Sales.Sum() is guaranteed upstream.
type ShiftSalesSummary struct {
	TotalSales           decimal.Decimal
	TotalProductsSold    int
	TotalMembershipsSold int
	TotalDailyAccessSold int
	Sales                TenderAmounts
}

// Consistent reports whether TotalSales matches the per-tender breakdown.
func (s ShiftSalesSummary) Consistent() bool {
	return s.TotalSales.Equal(s.Sales.Sum())
}

// PhysicalCount is what the operator counted at closing time.
// A tender that was not entered is zero, never "missing".
type PhysicalCount struct {
	Counted          TenderAmounts
	Notes            string
	DiscrepancyNotes string
}

// ClosureStatus: "pending" | "reviewed" | "discrepancy"
type ClosureStatus string

const (
	ClosureStatusPending     ClosureStatus = "pending"
	ClosureStatusReviewed    ClosureStatus = "reviewed"
	ClosureStatusDiscrepancy ClosureStatus = "discrepancy"
)

// ParseClosureStatus accepts any casing ("PENDING", "Pending", ...).
func ParseClosureStatus(s string) (ClosureStatus, error) {
	switch st := ClosureStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ClosureStatusPending, ClosureStatusReviewed, ClosureStatusDiscrepancy:
		return st, nil
	default:
		return "", fmt.Errorf("unknown closure status %q", s)
	}
}

// ShiftDateLayout is the layout of CashClosure.ShiftDate.
const ShiftDateLayout = "2006-01-02"

// CashClosure is the record kept by the closure store, one per
// (UserID, ShiftDate). Re-submitting the same day updates it in place.
type CashClosure struct {
	ID         string
	UserID     string
	ShiftDate  string
	ShiftStart time.Time
	ShiftEnd   time.Time
	Sales      ShiftSalesSummary
	Count      PhysicalCount
	Status     ClosureStatus
	CreatedAt  time.Time
	ReviewedBy *string
	ReviewedAt *time.Time
}

// ItemSold is one line of the items-sold report.
type ItemSold struct {
	ProductID      string
	ProductName    string
	QuantitySold   int
	UnitPrice      decimal.Decimal
	RemainingStock int
}

// ItemsSoldSummary is display/audit only; it never enters the reconciliation.
type ItemsSoldSummary struct {
	Items             []ItemSold
	TotalItemsSold    int
	TotalProductsSold int
}

// Draft is the operator's last count input for a shift, kept so a failed
// submission does not lose what was typed.
type Draft struct {
	UserID     string
	ShiftDate  string
	ShiftStart time.Time
	Count      PhysicalCount
	SavedAt    time.Time
}
