package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gymdesk/internal/backend"
	"gymdesk/internal/dto"
	"gymdesk/internal/handler"
	"gymdesk/internal/infra"
	"gymdesk/internal/middleware"
	"gymdesk/internal/reconcile"
	"gymdesk/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

// ── Stub CierreService ───────────────────────────────────────────────────────

type stubService struct {
	err     error
	hoy     *dto.CierreResponse
	lastOp  service.Operator
	lastReq dto.CierreRequest
	token   string
}

var _ service.CierreService = (*stubService)(nil)

func (s *stubService) record(ctx context.Context, op service.Operator) {
	s.lastOp = op
	s.token = backend.TokenFrom(ctx)
}

func (s *stubService) Resumen(ctx context.Context, op service.Operator, shiftStart string) (*dto.ResumenResponse, error) {
	s.record(ctx, op)
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ResumenResponse{ShiftStart: shiftStart, ShiftDate: "2026-03-02"}, nil
}

func (s *stubService) Preview(ctx context.Context, op service.Operator, req dto.CierreRequest) (*dto.PreviewResponse, error) {
	s.record(ctx, op)
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.PreviewResponse{HasDiscrepancy: true}, nil
}

func (s *stubService) Cerrar(ctx context.Context, op service.Operator, req dto.CierreRequest) (*dto.CierreResponse, error) {
	s.record(ctx, op)
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CierreResponse{ID: "31", Status: "pending"}, nil
}

func (s *stubService) Hoy(ctx context.Context, op service.Operator) (*dto.CierreResponse, error) {
	s.record(ctx, op)
	return s.hoy, s.err
}

func (s *stubService) Borrador(_ context.Context, op service.Operator, _ string) (*dto.BorradorResponse, error) {
	s.lastOp = op
	if s.err != nil {
		return nil, s.err
	}
	return &dto.BorradorResponse{ShiftDate: "2026-03-02"}, nil
}

func (s *stubService) PDF(_ context.Context, id string) (io.ReadCloser, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return io.NopCloser(strings.NewReader("%PDF-1.4 " + id)), "application/pdf", nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func engine(svc service.CierreService) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	auth := func(c *gin.Context) {
		c.Set(middleware.ClaimsKey, &middleware.JWTClaims{UserID: "7", Username: "recepcion"})
		c.Set(middleware.TokenKey, "tok-7")
		c.Next()
	}
	h := handler.NewCierreHandler(svc)
	g := r.Group("/v1/cierre", auth)
	g.GET("/resumen", h.Resumen)
	g.POST("/preview", h.Preview)
	g.POST("", h.Cerrar)
	g.GET("/hoy", h.Hoy)
	g.GET("/borrador", h.Borrador)
	g.GET("/:id/pdf", h.PDF)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestCerrar_Created(t *testing.T) {
	svc := &stubService{}
	w := do(engine(svc), http.MethodPost, "/v1/cierre",
		`{"shift_start":"2026-03-02T14:00:00-05:00","cash_counted":"498000","nequi_counted":200000.50,"notes":"ok"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "31", decode(t, w)["id"])
	assert.Equal(t, service.Operator{UserID: "7", Username: "recepcion"}, svc.lastOp)
	assert.Equal(t, "tok-7", svc.token)
	assert.True(t, svc.lastReq.CashCounted.Equal(decimal.NewFromInt(498000)))
	assert.Equal(t, "200000.5", svc.lastReq.NequiCounted.String())
}

func TestCerrar_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"negative", &reconcile.ValidationError{Reason: reconcile.ReasonNegativeCount, Field: "cash"}, http.StatusUnprocessableEntity, "negative_count"},
		{"missing start", &reconcile.ValidationError{Reason: reconcile.ReasonMissingShiftStart}, http.StatusUnprocessableEntity, "missing_shift_start"},
		{"summary", fmt.Errorf("%w: timeout", backend.ErrSummaryUnavailable), http.StatusServiceUnavailable, "summary_unavailable"},
		{"persistence", fmt.Errorf("%w: 409", backend.ErrPersistence), http.StatusBadGateway, "persistence_failed"},
		{"unknown", errors.New("kaboom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(engine(&stubService{err: tt.err}), http.MethodPost, "/v1/cierre", `{"shift_start":"x"}`)
			require.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
			assert.NotContains(t, w.Body.String(), "kaboom")
			assert.NotContains(t, w.Body.String(), "409")
		})
	}
}

func TestCerrar_TinyNegativeReachesReconcilerExact(t *testing.T) {
	svc := &stubService{}
	w := do(engine(svc), http.MethodPost, "/v1/cierre",
		`{"shift_start":"2026-03-02T14:00:00-05:00","cash_counted":-1e-400}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, svc.lastReq.CashCounted.IsNegative())
	assert.True(t, svc.lastReq.CashCounted.Equal(decimal.New(-1, -400)))
}

func TestCerrar_ValidationFieldIsReported(t *testing.T) {
	err := &reconcile.ValidationError{Reason: reconcile.ReasonNegativeCount, Field: "daviplata"}
	w := do(engine(&stubService{err: err}), http.MethodPost, "/v1/cierre", `{}`)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Equal(t, "negative_count", fields["daviplata"])
}

func TestCerrar_BadBody(t *testing.T) {
	w := do(engine(&stubService{}), http.MethodPost, "/v1/cierre", `{"cash_counted":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	long := strings.Repeat("a", 1001)
	w = do(engine(&stubService{}), http.MethodPost, "/v1/cierre", `{"notes":"`+long+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation_error", decode(t, w)["code"])
}

func TestPreview(t *testing.T) {
	w := do(engine(&stubService{}), http.MethodPost, "/v1/cierre/preview", `{"shift_start":"2026-03-02T14:00:00-05:00"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["has_discrepancy"])
}

func TestResumen(t *testing.T) {
	svc := &stubService{}
	w := do(engine(svc), http.MethodGet, "/v1/cierre/resumen?shift_start=2026-03-02T14:00:00-05:00", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-03-02T14:00:00-05:00", decode(t, w)["shift_start"])
	assert.Equal(t, "tok-7", svc.token)
}

func TestHoy(t *testing.T) {
	w := do(engine(&stubService{}), http.MethodGet, "/v1/cierre/hoy", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	w = do(engine(&stubService{hoy: &dto.CierreResponse{ID: "31"}}), http.MethodGet, "/v1/cierre/hoy", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "31", decode(t, w)["id"])
}

func TestBorrador(t *testing.T) {
	w := do(engine(&stubService{}), http.MethodGet, "/v1/cierre/borrador", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(engine(&stubService{err: service.ErrNoDraft}), http.MethodGet, "/v1/cierre/borrador", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no_draft", decode(t, w)["code"])
}

func TestPDF(t *testing.T) {
	w := do(engine(&stubService{}), http.MethodGet, "/v1/cierre/31/pdf", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cierre-31.pdf")
	assert.Equal(t, "%PDF-1.4 31", w.Body.String())

	w = do(engine(&stubService{err: backend.ErrNotFound}), http.MethodGet, "/v1/cierre/9/pdf", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ── Health ───────────────────────────────────────────────────────────────────

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", p.err)
}

func TestHealth(t *testing.T) {
	closed := func() infra.CBState { return infra.CBClosed }
	open := func() infra.CBState { return infra.CBOpen }

	r := gin.New()
	r.GET("/ok", handler.Health(stubPinger{}, open))
	r.GET("/down", handler.Health(stubPinger{err: errors.New("refused")}, closed))

	w := do(r, http.MethodGet, "/ok", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "connected", body["redis"])
	assert.Equal(t, "open", body["backend"])

	w = do(r, http.MethodGet, "/down", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])
}
