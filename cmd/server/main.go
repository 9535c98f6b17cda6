package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	insightpilot "github.com/dracory/insightpilot"
	"github.com/dracory/insightpilot/internal/observability"
	"github.com/dracory/insightpilot/internal/probe"
)

// sessionIdle is how long an unused browser session is kept.
const sessionIdle = 2 * time.Hour

func main() {
	// Load configuration (flags override env)
	cfg, err := insightpilot.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	app, err := insightpilot.New(cfg, insightpilot.WithLogger(logger))
	if err != nil {
		logger.Error("failed to initialize app", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	var scheduler *probe.Scheduler
	if cfg.ProbeSchedule != "" {
		scheduler, err = probe.NewScheduler(app.Prober(), cfg.ProbeSchedule, logger)
		if err != nil {
			logger.Error("failed to schedule connection checks", slog.Any("error", err))
			os.Exit(1)
		}
		scheduler.Start()
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 10m", func() { app.Sweep(sessionIdle) }); err != nil {
		logger.Error("failed to schedule session sweep", slog.Any("error", err))
		os.Exit(1)
	}
	sweeper.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle(cfg.BasePath, app.Handler())

	addr := ":" + strconv.Itoa(cfg.HTTPPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 15*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting insightpilot", slog.String("addr", addr), slog.String("base", cfg.BasePath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if scheduler != nil {
		scheduler.Stop()
	}
	<-sweeper.Stop().Done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}
