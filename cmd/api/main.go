package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/palinopr/ghl-lead-agent/cmd/mainconfig"
	"github.com/palinopr/ghl-lead-agent/internal/api/router"
	"github.com/palinopr/ghl-lead-agent/internal/app/bootstrap"
	appconfig "github.com/palinopr/ghl-lead-agent/internal/config"
	"github.com/palinopr/ghl-lead-agent/internal/http/handlers"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting ghl-lead-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildProcessor(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to wire turn processor", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// With the in-memory queue the worker must run inside this process.
	if cfg.UseMemoryQueue || cfg.TurnQueueURL == "" {
		go rt.Worker.Run(ctx)
		logger.Info("in-process turn worker started", "concurrency", cfg.WorkerCount)
	}

	webhookHandler := handlers.NewWebhookHandler(cfg.GHLWebhookSecret, rt.Publisher, logger)
	adminHandler := handlers.NewAdminHandler(rt.Store, logger)

	r := router.New(&router.Config{
		Logger:          logger,
		WebhookHandler:  webhookHandler,
		AdminHandler:    adminHandler,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
