package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gymdesk/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func sign(t *testing.T, method jwt.SigningMethod, key any, claims middleware.JWTClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func protectedEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/me", middleware.JWTAuth(secret), func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID, "token": middleware.GetToken(c)})
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	valid := sign(t, jwt.SigningMethodHS256, []byte(secret), middleware.JWTClaims{
		UserID: "7", Username: "recepcion", Rol: "cajero",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	subjectOnly := sign(t, jwt.SigningMethodHS256, []byte(secret), middleware.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "9"},
	})
	expired := sign(t, jwt.SigningMethodHS256, []byte(secret), middleware.JWTClaims{
		UserID:           "7",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), middleware.JWTClaims{UserID: "7"})
	noUser := sign(t, jwt.SigningMethodHS256, []byte(secret), middleware.JWTClaims{Username: "x"})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"subject fallback", "Bearer " + subjectOnly, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"no user", "Bearer " + noUser, http.StatusUnauthorized},
	}
	r := protectedEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestJWTAuth_ExposesRawToken(t *testing.T) {
	tok := sign(t, jwt.SigningMethodHS256, []byte(secret), middleware.JWTClaims{UserID: "7"})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	protectedEngine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tok)
}

func TestRequestID_ReusesCallerHeader(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(middleware.RequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestErrorHandler_HidesCause(t *testing.T) {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.GET("/", func(c *gin.Context) { _ = c.Error(assert.AnError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestRateLimiter(t *testing.T) {
	l := middleware.NewRateLimiter(2, time.Minute)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiter_Purge(t *testing.T) {
	l := middleware.NewRateLimiter(1, time.Nanosecond)
	ok, _ := l.Allow("a")
	assert.True(t, ok)
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, l.Purge())

	ok, _ = l.Allow("a")
	assert.True(t, ok, "fresh window after purge")
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CORS("https://admin.gym.co"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://admin.gym.co")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.gym.co", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
