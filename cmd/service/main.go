package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-ingest/internal/app"
	"github.com/kjstillabower/weather-ingest/internal/config"
	httphandler "github.com/kjstillabower/weather-ingest/internal/http"
	"github.com/kjstillabower/weather-ingest/internal/lifecycle"
	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/scheduler"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("build components", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		Window:             cfg.HealthWindow,
		DegradedPartialPct: cfg.DegradedPartialPct,
		Dependencies:       a.Dependencies,
		StartTime:          time.Now(),
	}
	if cfg.ValidateAPIKey {
		healthConfig.Validator = a.Client
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	handler := httphandler.NewHandler(a.Service, a.Outcomes, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		Outcomes:       a.Outcomes,
		InFlight:       inFlight,
		RequestTimeout: cfg.RequestTimeout,
	})

	sched := scheduler.New(a.Service, cfg.ScheduleCron, cfg.ScheduleCities, cfg.RequestTimeout, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// An ingest run spans several upstream calls per city.
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests",
		zap.Int64("count", inFlight.Count()),
		zap.Int64("peak", inFlight.Peak()))
	if err := inFlight.WaitForZero(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	if n := lifecycle.Running(); n > 0 {
		logger.Warn("ingest runs still in progress", zap.Int("running", n))
	}

	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("component shutdown", zap.Error(err))
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
