// civicsyncd keeps the local report and category caches in sync with the
// civic backend and serves them to a local UI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/civicsync/internal/api"
	"github.com/jmerrifield20/civicsync/internal/app"
	"github.com/jmerrifield20/civicsync/internal/config"
	"github.com/jmerrifield20/civicsync/internal/logging"
	"github.com/jmerrifield20/civicsync/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("CIVICSYNC_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "civicsyncd: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "civicsyncd: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("civicsyncd exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.FileUsed == "" {
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Services ─────────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}()

	a.SetTierRecorder(api.RecordTier)
	a.Monitor.SetMetricsRecord(api.RecordBackendProbe)
	api.RegisterStateGauges(prometheus.DefaultRegisterer, a.Monitor.Online, func() int {
		return len(a.Reports.Pending())
	})

	// ── Background: health monitor + scheduled sync ──────────────────────────
	go a.Monitor.Start(ctx)

	sched := scheduler.New(a.Categories, a.Reports, a.Monitor.Online, scheduler.Config{
		CategorySpec: cfg.Scheduler.CategorySpec,
		PendingSpec:  cfg.Scheduler.PendingSpec,
	}, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := api.NewHandler(a.Reports, a.Categories, a.Validator, a.Monitor, logger)
	router := api.NewRouter(h, api.RouterConfig{
		CORSOrigins:  cfg.API.CORSOrigins,
		RateLimitRPS: cfg.API.RateLimitRPS,
	}, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("civicsyncd HTTP listening", zap.Int("port", cfg.API.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP listen: %w", err)
	}
	logger.Info("shutting down civicsyncd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("civicsyncd stopped")
	return nil
}
