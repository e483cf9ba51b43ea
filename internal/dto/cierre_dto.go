package dto

import (
	"gymdesk/internal/model"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CierreRequest is the operator's physical count. Amounts that were not
// entered are zero. Negative amounts and a missing shift_start are reported
// by the reconciler with its own reasons, so they carry no tags here.
type CierreRequest struct {
	ShiftStart         string          `json:"shift_start"`
	CashCounted        decimal.Decimal `json:"cash_counted"`
	NequiCounted       decimal.Decimal `json:"nequi_counted"`
	BancolombiaCounted decimal.Decimal `json:"bancolombia_counted"`
	DaviplataCounted   decimal.Decimal `json:"daviplata_counted"`
	CardCounted        decimal.Decimal `json:"card_counted"`
	TransferCounted    decimal.Decimal `json:"transfer_counted"`
	Notes              string          `json:"notes"             validate:"max=1000"`
	DiscrepancyNotes   string          `json:"discrepancy_notes" validate:"max=1000"`
}

// Count maps the request onto the domain count.
func (r CierreRequest) Count() model.PhysicalCount {
	return model.PhysicalCount{
		Counted: model.TenderAmounts{
			Cash:        r.CashCounted,
			Nequi:       r.NequiCounted,
			Bancolombia: r.BancolombiaCounted,
			Daviplata:   r.DaviplataCounted,
			Card:        r.CardCounted,
			Transfer:    r.TransferCounted,
		},
		Notes:            r.Notes,
		DiscrepancyNotes: r.DiscrepancyNotes,
	}
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MontosPorTender struct {
	Cash        decimal.Decimal `json:"cash"`
	Nequi       decimal.Decimal `json:"nequi"`
	Bancolombia decimal.Decimal `json:"bancolombia"`
	Daviplata   decimal.Decimal `json:"daviplata"`
	Card        decimal.Decimal `json:"card"`
	Transfer    decimal.Decimal `json:"transfer"`
	Total       decimal.Decimal `json:"total"`
}

func NewMontos(a model.TenderAmounts, total decimal.Decimal) MontosPorTender {
	return MontosPorTender{
		Cash:        a.Cash,
		Nequi:       a.Nequi,
		Bancolombia: a.Bancolombia,
		Daviplata:   a.Daviplata,
		Card:        a.Card,
		Transfer:    a.Transfer,
		Total:       total,
	}
}

type DesvioResponse struct {
	Monto         decimal.Decimal `json:"monto"`
	Porcentaje    decimal.Decimal `json:"porcentaje"`
	Clasificacion string          `json:"clasificacion"` // normal | warning | critical
}

type VentasTurnoResponse struct {
	TotalSales           decimal.Decimal `json:"total_sales"`
	TotalProductsSold    int             `json:"total_products_sold"`
	TotalMembershipsSold int             `json:"total_memberships_sold"`
	TotalDailyAccessSold int             `json:"total_daily_access_sold"`
	PorTender            MontosPorTender `json:"por_tender"`
}

func NewVentasTurno(s model.ShiftSalesSummary) VentasTurnoResponse {
	return VentasTurnoResponse{
		TotalSales:           s.TotalSales,
		TotalProductsSold:    s.TotalProductsSold,
		TotalMembershipsSold: s.TotalMembershipsSold,
		TotalDailyAccessSold: s.TotalDailyAccessSold,
		PorTender:            NewMontos(s.Sales, s.TotalSales),
	}
}

type ItemVendidoResponse struct {
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	QuantitySold   int             `json:"quantity_sold"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	RemainingStock int             `json:"remaining_stock"`
}

type ItemsVendidosResponse struct {
	Items             []ItemVendidoResponse `json:"items"`
	TotalItemsSold    int                   `json:"total_items_sold"`
	TotalProductsSold int                   `json:"total_products_sold"`
}

func NewItemsVendidos(s model.ItemsSoldSummary) *ItemsVendidosResponse {
	resp := &ItemsVendidosResponse{
		Items:             make([]ItemVendidoResponse, 0, len(s.Items)),
		TotalItemsSold:    s.TotalItemsSold,
		TotalProductsSold: s.TotalProductsSold,
	}
	for _, it := range s.Items {
		resp.Items = append(resp.Items, ItemVendidoResponse{
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			QuantitySold:   it.QuantitySold,
			UnitPrice:      it.UnitPrice,
			RemainingStock: it.RemainingStock,
		})
	}
	return resp
}

// ResumenResponse: Items is nil when the items report could not be fetched.
type ResumenResponse struct {
	ShiftStart string                 `json:"shift_start"`
	ShiftDate  string                 `json:"shift_date"`
	Ventas     VentasTurnoResponse    `json:"ventas"`
	Items      *ItemsVendidosResponse `json:"items"`
}

type PreviewResponse struct {
	ShiftStart     string                 `json:"shift_start"`
	ShiftDate      string                 `json:"shift_date"`
	Ventas         VentasTurnoResponse    `json:"ventas"`
	Contado        MontosPorTender        `json:"contado"`
	Diferencias    MontosPorTender        `json:"diferencias"`
	HasDiscrepancy bool                   `json:"has_discrepancy"`
	Desvio         DesvioResponse         `json:"desvio"`
	Items          *ItemsVendidosResponse `json:"items"`
}

type CierreResponse struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	ShiftDate        string              `json:"shift_date"`
	ShiftStart       string              `json:"shift_start"`
	ShiftEnd         string              `json:"shift_end"`
	Status           string              `json:"status"`
	Final            bool                `json:"final"` // a reviewer has settled the closure
	Ventas           VentasTurnoResponse `json:"ventas"`
	Contado          MontosPorTender     `json:"contado"`
	Diferencias      MontosPorTender     `json:"diferencias"`
	HasDiscrepancy   bool                `json:"has_discrepancy"`
	Desvio           DesvioResponse      `json:"desvio"`
	Notes            string              `json:"notes"`
	DiscrepancyNotes string              `json:"discrepancy_notes"`
	CreatedAt        string              `json:"created_at"`
	ReviewedBy       *string             `json:"reviewed_by"`
	ReviewedAt       *string             `json:"reviewed_at"`
}

type BorradorResponse struct {
	ShiftDate        string          `json:"shift_date"`
	ShiftStart       string          `json:"shift_start"`
	Contado          MontosPorTender `json:"contado"`
	Notes            string          `json:"notes"`
	DiscrepancyNotes string          `json:"discrepancy_notes"`
	SavedAt          string          `json:"saved_at"`
}
