package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gymdesk/internal/backend"
	"gymdesk/internal/infra"
	"gymdesk/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bogota = time.FixedZone("COT", -5*3600)

func newClient(t *testing.T, h http.Handler) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return backend.NewClient(backend.Config{
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
		Location: bogota,
		Breaker:  infra.CircuitBreakerConfig{Name: "test", FailureThreshold: 2, OpenTimeout: time.Minute},
	})
}

func TestShiftSummary_ForwardsTokenAndShiftStart(t *testing.T) {
	var gotAuth, gotShift string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cash-closures/shift-summary", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotShift = r.URL.Query().Get("shift_start")
		_, _ = io.WriteString(w, `{"data":{"total_sales":"150000","cash_sales":100000,"nequi_sales":50000,"bancolombia_sales":0,"daviplata_sales":0,"card_sales":0,"transfer_sales":0}}`)
	}))

	ctx := backend.WithToken(context.Background(), "tok-123")
	s, err := c.ShiftSummary(ctx, time.Date(2026, 3, 2, 6, 0, 0, 0, bogota))
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "2026-03-02T06:00:00-05:00", gotShift)
	assert.True(t, decimal.NewFromInt(150000).Equal(s.TotalSales))
	assert.True(t, decimal.NewFromInt(50000).Equal(s.Sales.Nequi))
}

func TestShiftSummary_Unavailable(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"forbidden": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"detail":"no autorizado"}`)
		},
		"partial body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"total_sales":100,"cash_sales":100}`)
		},
		"empty body": func(w http.ResponseWriter, _ *http.Request) {},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, h)
			_, err := c.ShiftSummary(context.Background(), time.Now())
			assert.ErrorIs(t, err, backend.ErrSummaryUnavailable)
		})
	}
}

func TestShiftSummary_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	c := backend.NewClient(backend.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := c.ShiftSummary(context.Background(), time.Now())
	assert.ErrorIs(t, err, backend.ErrSummaryUnavailable)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 3; i++ {
		_, err := c.ShiftSummary(context.Background(), time.Now())
		assert.ErrorIs(t, err, backend.ErrSummaryUnavailable)
	}
	assert.Equal(t, int32(2), hits.Load(), "third call must fail fast")
	assert.Equal(t, infra.CBOpen, c.BreakerState())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	for i := 0; i < 5; i++ {
		_, err := c.SaveClosure(context.Background(), model.CashClosure{})
		assert.ErrorIs(t, err, backend.ErrPersistence)
	}
	assert.Equal(t, infra.CBClosed, c.BreakerState())
}

func TestShiftItems(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cash-closures/shift-items", r.URL.Path)
		_, _ = io.WriteString(w, `{"products":[{"product_id":3,"product_name":"Bebida","quantity_sold":2,"unit_price":3000,"remaining_stock":8}]}`)
	}))
	items, err := c.ShiftItems(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, items.Items, 1)
	assert.Equal(t, "Bebida", items.Items[0].ProductName)
	assert.Equal(t, 2, items.TotalItemsSold)
	assert.Equal(t, 1, items.TotalProductsSold)
}

func TestTodayClosure(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		for _, body := range []string{"", "null", "{}"} {
			c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			got, err := c.TodayClosure(context.Background())
			require.NoError(t, err)
			assert.Nil(t, got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		c := newClient(t, http.NotFoundHandler())
		got, err := c.TodayClosure(context.Background())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("existing", func(t *testing.T) {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/cash-closures/today-closure", r.URL.Path)
			_, _ = io.WriteString(w, `{"closure":{"id":5,"user_id":7,"shift_date":"2026-03-02","status":"reviewed","cash_counted":10}}`)
		}))
		got, err := c.TodayClosure(context.Background())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "5", got.ID)
		assert.Equal(t, model.ClosureStatusReviewed, got.Status)
	})

	t.Run("store down", func(t *testing.T) {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		_, err := c.TodayClosure(context.Background())
		assert.ErrorIs(t, err, backend.ErrPersistence)
	})
}

func TestSaveClosure(t *testing.T) {
	var body map[string]any
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cash-closures", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"88","user_id":"7","shift_date":"2026-03-02","status":"pending","cash_counted":"498000.00"}}`)
	}))

	closure := model.CashClosure{
		UserID:    "7",
		ShiftDate: "2026-03-02",
		Count:     model.PhysicalCount{Counted: model.TenderAmounts{Cash: decimal.NewFromInt(498000)}},
		Status:    model.ClosureStatusPending,
	}
	saved, err := c.SaveClosure(context.Background(), closure)
	require.NoError(t, err)

	assert.Equal(t, "88", saved.ID)
	assert.Equal(t, "2026-03-02", body["shift_date"])
	assert.Equal(t, 498000.0, body["cash_counted"])
	assert.NotContains(t, body, "id")
}

func TestSaveClosure_EmptyCreatedBody(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	closure := model.CashClosure{UserID: "7", ShiftDate: "2026-03-02", Status: model.ClosureStatusPending}
	saved, err := c.SaveClosure(context.Background(), closure)
	require.NoError(t, err)
	assert.Equal(t, closure, saved)
}

func TestSaveClosure_Conflict(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	_, err := c.SaveClosure(context.Background(), model.CashClosure{})
	require.ErrorIs(t, err, backend.ErrPersistence)
}

func TestClosurePDF(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cash-closures/5/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = io.WriteString(w, "%PDF-1.4 fake")
		default:
			http.NotFound(w, r)
		}
	}))

	body, ct, err := c.ClosurePDF(context.Background(), "5")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
	assert.Equal(t, "%PDF-1.4 fake", string(data))

	_, _, err = c.ClosurePDF(context.Background(), "404")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}
