package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gymdesk/internal/model"
	"gymdesk/internal/reconcile"

	"github.com/shopspring/decimal"
)

// ── Normalization boundary ───────────────────────────────────────────────────
// The backend is not consistent about envelopes: the same resource may come
// bare, under "data", or under a resource key, and ids may be numbers or
// strings. Each endpoint has exactly one function here that maps every
// accepted shape to the canonical model type. Nothing outside this file looks
// at raw response bodies.

var errPartialSummary = errors.New("partial summary")

type object map[string]json.RawMessage

func isNull(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// peel strips {"data": ...} and {"<key>": ...} envelopes, outermost first.
// A member only counts as an envelope when it holds an object, an array or
// null, so a scalar "data" field on a resource is left alone.
func peel(raw []byte, keys ...string) []byte {
	for {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			return raw
		}
		var obj object
		if err := json.Unmarshal(raw, &obj); err != nil {
			return raw
		}
		inner, found := []byte(nil), false
		for _, k := range append([]string{"data"}, keys...) {
			if v, ok := obj[k]; ok && isContainer(v) {
				inner, found = v, true
				break
			}
		}
		if !found {
			return raw
		}
		raw = inner
	}
}

func isContainer(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return isNull(raw) || raw[0] == '{' || raw[0] == '['
}

// flexID accepts 17, "17" and null.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// flexInt accepts 3, 3.0, "3" and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("integer: %w", err)
	}
	*f = flexInt(d.IntPart())
	return nil
}

func (o object) getDecimal(key string) (decimal.Decimal, bool, error) {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return decimal.Zero, false, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

func (o object) getInt(key string) (int, error) {
	var n flexInt
	raw, ok := o[key]
	if !ok {
		return 0, nil
	}
	if err := n.UnmarshalJSON(raw); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return int(n), nil
}

func (o object) getString(key string) (string, error) {
	var id flexID
	raw, ok := o[key]
	if !ok {
		return "", nil
	}
	if err := id.UnmarshalJSON(raw); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return string(id), nil
}

func (o object) getTime(key string, loc *time.Location) (time.Time, error) {
	s, err := o.getString(key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := reconcile.ParseShiftStart(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t, nil
}

func salesKey(t model.TenderType) string   { return string(t) + "_sales" }
func countedKey(t model.TenderType) string { return string(t) + "_counted" }

// readSummary reads the summary fields of o. With strict set, total_sales and
// every per-tender sales field must be present.
func readSummary(o object, strict bool) (model.ShiftSalesSummary, error) {
	var s model.ShiftSalesSummary

	total, ok, err := o.getDecimal("total_sales")
	if err != nil {
		return s, err
	}
	if strict && !ok {
		return s, fmt.Errorf("%w: total_sales missing", errPartialSummary)
	}
	s.TotalSales = total

	for _, t := range model.Tenders {
		v, ok, err := o.getDecimal(salesKey(t))
		if err != nil {
			return s, err
		}
		if strict && !ok {
			return s, fmt.Errorf("%w: %s missing", errPartialSummary, salesKey(t))
		}
		s.Sales.Set(t, v)
	}

	if s.TotalProductsSold, err = o.getInt("total_products_sold"); err != nil {
		return s, err
	}
	if s.TotalMembershipsSold, err = o.getInt("total_memberships_sold"); err != nil {
		return s, err
	}
	if s.TotalDailyAccessSold, err = o.getInt("total_daily_access_sold"); err != nil {
		return s, err
	}
	return s, nil
}

// normalizeSummary maps a shift-summary body. A body that is not an object or
// lacks any amount is a partial summary.
func normalizeSummary(body []byte) (model.ShiftSalesSummary, error) {
	raw := peel(body, "summary")
	if isNull(raw) {
		return model.ShiftSalesSummary{}, fmt.Errorf("%w: empty body", errPartialSummary)
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return model.ShiftSalesSummary{}, fmt.Errorf("%w: %v", errPartialSummary, err)
	}
	return readSummary(o, true)
}

type wireItem struct {
	ProductID      flexID          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Name           string          `json:"name"`
	QuantitySold   flexInt         `json:"quantity_sold"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	RemainingStock flexInt         `json:"remaining_stock"`
}

// normalizeItems maps a shift-items body: a bare array, or an object with
// "items" or "products" and optional totals. Missing totals are derived.
func normalizeItems(body []byte) (model.ItemsSoldSummary, error) {
	var out model.ItemsSoldSummary

	raw := peel(body)
	if isNull(raw) {
		return out, nil
	}

	var (
		list   []wireItem
		totals object
	)
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return out, fmt.Errorf("items: %w", err)
		}
	} else {
		if err := json.Unmarshal(raw, &totals); err != nil {
			return out, fmt.Errorf("items: %w", err)
		}
		itemsRaw, ok := totals["items"]
		if !ok {
			itemsRaw = totals["products"]
		}
		if !isNull(itemsRaw) {
			if err := json.Unmarshal(itemsRaw, &list); err != nil {
				return out, fmt.Errorf("items: %w", err)
			}
		}
	}

	skus := make(map[string]struct{}, len(list))
	qty := 0
	out.Items = make([]model.ItemSold, 0, len(list))
	for _, w := range list {
		name := w.ProductName
		if name == "" {
			name = w.Name
		}
		out.Items = append(out.Items, model.ItemSold{
			ProductID:      string(w.ProductID),
			ProductName:    name,
			QuantitySold:   int(w.QuantitySold),
			UnitPrice:      w.UnitPrice,
			RemainingStock: int(w.RemainingStock),
		})
		skus[string(w.ProductID)] = struct{}{}
		qty += int(w.QuantitySold)
	}
	out.TotalItemsSold = qty
	out.TotalProductsSold = len(skus)

	if _, ok := totals["total_items_sold"]; ok {
		n, err := totals.getInt("total_items_sold")
		if err != nil {
			return out, err
		}
		out.TotalItemsSold = n
	}
	if _, ok := totals["total_products_sold"]; ok {
		n, err := totals.getInt("total_products_sold")
		if err != nil {
			return out, err
		}
		out.TotalProductsSold = n
	}
	return out, nil
}

// normalizeClosure maps a closure body. An empty body, null, {} or an empty
// list mean there is no closure; a list yields its first element.
func normalizeClosure(body []byte, loc *time.Location) (*model.CashClosure, error) {
	raw := peel(body, "closure")
	if isNull(raw) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("closure: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		raw = peel(list[0], "closure")
		if isNull(raw) {
			return nil, nil
		}
	}

	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("closure: %w", err)
	}
	if len(o) == 0 {
		return nil, nil
	}
	return readClosure(o, loc)
}

func readClosure(o object, loc *time.Location) (*model.CashClosure, error) {
	var (
		c   model.CashClosure
		err error
	)
	if c.ID, err = o.getString("id"); err != nil {
		return nil, err
	}
	if c.UserID, err = o.getString("user_id"); err != nil {
		return nil, err
	}
	shiftDate, err := o.getString("shift_date")
	if err != nil {
		return nil, err
	}
	if c.ShiftDate, err = reconcile.CalendarDate(shiftDate); err != nil {
		return nil, err
	}
	if c.ShiftStart, err = o.getTime("shift_start", loc); err != nil {
		return nil, err
	}
	if c.ShiftEnd, err = o.getTime("shift_end", loc); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = o.getTime("created_at", loc); err != nil {
		return nil, err
	}
	if c.Sales, err = readSummary(o, false); err != nil {
		return nil, err
	}
	for _, t := range model.Tenders {
		v, _, err := o.getDecimal(countedKey(t))
		if err != nil {
			return nil, err
		}
		c.Count.Counted.Set(t, v)
	}
	if c.Count.Notes, err = o.getString("notes"); err != nil {
		return nil, err
	}
	if c.Count.DiscrepancyNotes, err = o.getString("discrepancy_notes"); err != nil {
		return nil, err
	}

	status, err := o.getString("status")
	if err != nil {
		return nil, err
	}
	c.Status = model.ClosureStatusPending
	if status != "" {
		if c.Status, err = model.ParseClosureStatus(status); err != nil {
			return nil, err
		}
	}

	reviewer, err := o.getString("reviewed_by")
	if err != nil {
		return nil, err
	}
	if reviewer != "" {
		c.ReviewedBy = &reviewer
	}
	reviewedAt, err := o.getTime("reviewed_at", loc)
	if err != nil {
		return nil, err
	}
	if !reviewedAt.IsZero() {
		c.ReviewedAt = &reviewedAt
	}

	if c.ShiftDate == "" && !c.ShiftStart.IsZero() {
		c.ShiftDate = c.ShiftStart.In(loc).Format(model.ShiftDateLayout)
	}
	return &c, nil
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// closurePayload is the POST /cash-closures body. The flat layout with
// *_sales and *_counted keys is what the closure store reads.
func closurePayload(c model.CashClosure) map[string]any {
	p := map[string]any{
		"shift_date":              c.ShiftDate,
		"shift_start":             formatTime(c.ShiftStart),
		"shift_end":               formatTime(c.ShiftEnd),
		"total_sales":             money(c.Sales.TotalSales),
		"total_products_sold":     c.Sales.TotalProductsSold,
		"total_memberships_sold":  c.Sales.TotalMembershipsSold,
		"total_daily_access_sold": c.Sales.TotalDailyAccessSold,
		"notes":                   c.Count.Notes,
		"discrepancy_notes":       c.Count.DiscrepancyNotes,
		"status":                  string(c.Status),
	}
	if c.ID != "" {
		if n, err := strconv.ParseInt(c.ID, 10, 64); err == nil {
			p["id"] = n
		} else {
			p["id"] = c.ID
		}
	}
	for _, t := range model.Tenders {
		p[salesKey(t)] = money(c.Sales.Sales.Get(t))
		p[countedKey(t)] = money(c.Count.Counted.Get(t))
	}
	return p
}
