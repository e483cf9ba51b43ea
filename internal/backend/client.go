// Package backend is the typed client of the REST backend that aggregates
// shift sales and stores cash closures.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gymdesk/internal/infra"
	"gymdesk/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSummaryUnavailable: the shift summary could not be obtained in full.
	// Differences must not be computed against a partial or missing summary.
	ErrSummaryUnavailable = errors.New("shift summary unavailable")

	// ErrPersistence: the closure store failed to read or write a closure.
	// The same submission can be retried unchanged.
	ErrPersistence = errors.New("closure store failure")

	// ErrNotFound is returned by ClosurePDF for an unknown closure.
	ErrNotFound = errors.New("closure not found")
)

const (
	pathShiftSummary = "/cash-closures/shift-summary"
	pathShiftItems   = "/cash-closures/shift-items"
	pathTodayClosure = "/cash-closures/today-closure"
	pathClosures     = "/cash-closures"
	pathClosurePDF   = "/cash-closures/{id}/pdf"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

type tokenKey struct{}

// WithToken attaches the operator's bearer token to ctx. Every backend call
// made with that ctx is authenticated as the operator.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the token set by WithToken, or "".
func TokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

// Config holds the client's tunables.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Location *time.Location
	Breaker  infra.CircuitBreakerConfig
}

// Client talks to the backend over HTTP. Safe for concurrent use.
type Client struct {
	http *resty.Client
	cb   *infra.CircuitBreaker
	loc  *time.Location
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = infra.DefaultCBConfig("backend")
	}
	httpc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http: httpc,
		cb:   infra.NewCircuitBreaker(cfg.Breaker),
		loc:  cfg.Location,
	}
}

// BreakerState is reported by /health.
func (c *Client) BreakerState() infra.CBState { return c.cb.State() }

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if tok := TokenFrom(ctx); tok != "" {
		req.SetAuthToken(tok)
	}
	return req
}

// do sends req through the breaker. Transport errors and 5xx answers count
// as breaker failures; 4xx answers are returned as *StatusError without
// tripping it.
func (c *Client) do(req *resty.Request, method, path string) (*resty.Response, error) {
	var resp *resty.Response
	err := c.cb.Execute(func() error {
		var err error
		resp, err = req.Execute(method, path)
		if err != nil {
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return statusError(resp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return resp, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *resty.Response) *StatusError {
	body := resp.String()
	if len(body) > 256 {
		body = body[:256]
	}
	return &StatusError{Status: resp.StatusCode(), Body: body}
}

func shiftParam(t time.Time) string { return t.Format(time.RFC3339) }

// ShiftSummary fetches the sales recorded since shiftStart. Any failure,
// including a body missing one of the amounts, is ErrSummaryUnavailable.
func (c *Client) ShiftSummary(ctx context.Context, shiftStart time.Time) (model.ShiftSalesSummary, error) {
	resp, err := c.do(c.request(ctx).SetQueryParam("shift_start", shiftParam(shiftStart)), http.MethodGet, pathShiftSummary)
	if err != nil {
		return model.ShiftSalesSummary{}, fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	summary, err := normalizeSummary(resp.Body())
	if err != nil {
		return model.ShiftSalesSummary{}, fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	if !summary.Consistent() {
		log.Warn().
			Str("total_sales", summary.TotalSales.String()).
			Str("tender_sum", summary.Sales.Sum().String()).
			Msg("backend: shift summary total does not match tender breakdown")
	}
	return summary, nil
}

// ShiftItems fetches the items sold since shiftStart.
func (c *Client) ShiftItems(ctx context.Context, shiftStart time.Time) (model.ItemsSoldSummary, error) {
	resp, err := c.do(c.request(ctx).SetQueryParam("shift_start", shiftParam(shiftStart)), http.MethodGet, pathShiftItems)
	if err != nil {
		return model.ItemsSoldSummary{}, fmt.Errorf("backend: shift items: %w", err)
	}
	items, err := normalizeItems(resp.Body())
	if err != nil {
		return model.ItemsSoldSummary{}, fmt.Errorf("backend: shift items: %w", err)
	}
	return items, nil
}

// TodayClosure returns the operator's closure for today, or nil when there
// is none yet. A 404 also means none.
func (c *Client) TodayClosure(ctx context.Context) (*model.CashClosure, error) {
	resp, err := c.do(c.request(ctx), http.MethodGet, pathTodayClosure)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: today closure: %v", ErrPersistence, err)
	}
	closure, err := normalizeClosure(resp.Body(), c.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: today closure: %v", ErrPersistence, err)
	}
	return closure, nil
}

// SaveClosure upserts closure and returns the stored record. The store keys
// it by (user, shift date); the user comes from the bearer token.
func (c *Client) SaveClosure(ctx context.Context, closure model.CashClosure) (model.CashClosure, error) {
	req := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(closurePayload(closure))
	resp, err := c.do(req, http.MethodPost, pathClosures)
	if err != nil {
		return model.CashClosure{}, fmt.Errorf("%w: save closure: %v", ErrPersistence, err)
	}

	saved, err := normalizeClosure(resp.Body(), c.loc)
	if err != nil {
		return model.CashClosure{}, fmt.Errorf("%w: save closure: %v", ErrPersistence, err)
	}
	if saved == nil {
		// Some deployments answer 201 with an empty body.
		return closure, nil
	}
	if saved.UserID == "" {
		saved.UserID = closure.UserID
	}
	return *saved, nil
}

// ClosurePDF streams the PDF export of a closure. The caller closes the
// returned body.
func (c *Client) ClosurePDF(ctx context.Context, id string) (io.ReadCloser, string, error) {
	req := c.request(ctx).
		SetHeader("Accept", "application/pdf").
		SetPathParam("id", id).
		SetDoNotParseResponse(true)

	var resp *resty.Response
	err := c.cb.Execute(func() error {
		var err error
		resp, err = req.Get(pathClosurePDF)
		if err != nil {
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			resp.RawBody().Close()
			return &StatusError{Status: resp.StatusCode()}
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: closure pdf: %v", ErrPersistence, err)
	}
	if !resp.IsSuccess() {
		resp.RawBody().Close()
		if resp.StatusCode() == http.StatusNotFound {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("%w: closure pdf: %v", ErrPersistence, &StatusError{Status: resp.StatusCode()})
	}
	return resp.RawBody(), resp.Header().Get("Content-Type"), nil
}
