package router

import (
	"fmt"

	"gymdesk/internal/backend"
	"gymdesk/internal/config"
	"gymdesk/internal/events"
	"gymdesk/internal/handler"
	"gymdesk/internal/middleware"
	"gymdesk/internal/reconcile"
	"gymdesk/internal/repository"
	"gymdesk/internal/service"

	"github.com/gin-gonic/gin"
)

// Deps are the long-lived pieces built by the composition root.
type Deps struct {
	Redis   handler.Pinger
	Drafts  repository.DraftRepository
	Bus     *events.Bus
	Limiter *middleware.RateLimiter
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Backend client / DraftRepository ← Redis
func New(cfg *config.Config, deps Deps) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())

	// ── Infrastructure ───────────────────────────────────────────────────────
	backendClient := backend.NewClient(backend.Config{
		BaseURL:  cfg.BackendURL,
		Timeout:  cfg.BackendTimeout,
		Location: loc,
	})

	// ── Services ─────────────────────────────────────────────────────────────
	cierreSvc := service.NewCierreService(
		backendClient,
		deps.Drafts,
		reconcile.NewReconciler(loc, nil),
		deps.Bus,
		service.CierreOptions{RequireDiscrepancyNotes: cfg.RequireDiscrepancyNotes},
	)

	// ── Handlers ─────────────────────────────────────────────────────────────
	cierreH := handler.NewCierreHandler(cierreSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(deps.Redis, backendClient.BreakerState))

	// Protected routes; the limiter runs after auth so it keys by operator
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.Middleware())
	}
	cierre := v1.Group("/cierre")
	{
		cierre.GET("/resumen", cierreH.Resumen)
		cierre.POST("/preview", cierreH.Preview)
		cierre.POST("", cierreH.Cerrar)
		cierre.GET("/hoy", cierreH.Hoy)
		cierre.GET("/borrador", cierreH.Borrador)
		cierre.GET("/:id/pdf", cierreH.PDF)
	}

	return r, nil
}
