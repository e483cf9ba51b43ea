package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gymdesk/internal/config"
	"gymdesk/internal/events"
	"gymdesk/internal/infra"
	"gymdesk/internal/middleware"
	"gymdesk/internal/repository"
	"gymdesk/internal/router"
	"gymdesk/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One bus for the whole process; subscribers are wired here (composition root).
	bus := events.NewBus()
	unsubscribeAudit := events.SubscribeAuditLog(bus)
	defer unsubscribeAudit()

	dispatcher := worker.NewDispatcher(rdb)
	unsubscribeAlerts := worker.SubscribeDiscrepancyAlerts(bus, dispatcher)
	defer unsubscribeAlerts()

	mailer := infra.NewMailer(cfg)
	if !cfg.SMTPEnabled() || len(cfg.Recipients()) == 0 {
		log.Warn().Msg("discrepancy alerts disabled: SMTP_HOST or ALERT_RECIPIENTS not set")
	}
	workersDone := worker.StartWorkerPool(ctx, rdb, worker.PoolConfig{
		Workers: cfg.WorkerPoolSize,
		Handlers: map[string]worker.JobHandler{
			worker.JobTypeDiscrepancyAlert: worker.NewAlertWorker(mailer, cfg.Recipients()),
		},
	})
	worker.StartRedriveCron(ctx, rdb, cfg.DLQRedriveInterval)

	limiter := middleware.NewRateLimiter(300, time.Minute)
	go limiter.RunPurge(ctx, 5*time.Minute)

	r, err := router.New(cfg, router.Deps{
		Redis:   rdb,
		Drafts:  repository.NewDraftRepository(rdb, cfg.DraftTTL),
		Bus:     bus,
		Limiter: limiter,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("gymdesk listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	// Stop the workers only after in-flight requests have published their events.
	cancel()
	workersDone.Wait()
	log.Info().Msg("server exited")
}

// setupLogger: dev gets the pretty console writer, prod gets JSON.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
