package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TenderType is a payment method accepted at the front desk.
// Closed set: cash | nequi | bancolombia | daviplata | card | transfer
type TenderType string

const (
	TenderCash        TenderType = "cash"
	TenderNequi       TenderType = "nequi"
	TenderBancolombia TenderType = "bancolombia"
	TenderDaviplata   TenderType = "daviplata"
	TenderCard        TenderType = "card"
	TenderTransfer    TenderType = "transfer"
)

// Tenders lists every TenderType in canonical order. Validation reports and
// wire encodings follow this order.
var Tenders = []TenderType{
	TenderCash,
	TenderNequi,
	TenderBancolombia,
	TenderDaviplata,
	TenderCard,
	TenderTransfer,
}

// ParseTenderType accepts any casing and surrounding blanks.
func ParseTenderType(s string) (TenderType, error) {
	t := TenderType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tenders {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tender type %q", s)
}

// TenderAmounts holds one amount per TenderType.
type TenderAmounts struct {
	Cash        decimal.Decimal
	Nequi       decimal.Decimal
	Bancolombia decimal.Decimal
	Daviplata   decimal.Decimal
	Card        decimal.Decimal
	Transfer    decimal.Decimal
}

// Get returns the amount for t. Unknown tenders yield zero.
func (a TenderAmounts) Get(t TenderType) decimal.Decimal {
	switch t {
	case TenderCash:
		return a.Cash
	case TenderNequi:
		return a.Nequi
	case TenderBancolombia:
		return a.Bancolombia
	case TenderDaviplata:
		return a.Daviplata
	case TenderCard:
		return a.Card
	case TenderTransfer:
		return a.Transfer
	default:
		return decimal.Zero
	}
}

// Set stores v for t. Unknown tenders are ignored.
func (a *TenderAmounts) Set(t TenderType, v decimal.Decimal) {
	switch t {
	case TenderCash:
		a.Cash = v
	case TenderNequi:
		a.Nequi = v
	case TenderBancolombia:
		a.Bancolombia = v
	case TenderDaviplata:
		a.Daviplata = v
	case TenderCard:
		a.Card = v
	case TenderTransfer:
		a.Transfer = v
	}
}

// Sum adds all six tenders.
func (a TenderAmounts) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, t := range Tenders {
		total = total.Add(a.Get(t))
	}
	return total
}

// Equal compares tender by tender using decimal equality (1.0 == 1.00).
func (a TenderAmounts) Equal(b TenderAmounts) bool {
	for _, t := range Tenders {
		if !a.Get(t).Equal(b.Get(t)) {
			return false
		}
	}
	return true
}
