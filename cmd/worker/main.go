package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/palinopr/ghl-lead-agent/cmd/mainconfig"
	"github.com/palinopr/ghl-lead-agent/internal/app/bootstrap"
	appconfig "github.com/palinopr/ghl-lead-agent/internal/config"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting ghl-lead-agent turn worker",
		"env", cfg.Env,
		"concurrency", cfg.WorkerCount,
	)

	if cfg.TurnQueueURL == "" && !cfg.UseMemoryQueue {
		logger.Error("TURN_QUEUE_URL is required for the standalone worker")
		os.Exit(1)
	}

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

	rt.Worker.Run(ctx)
	logger.Info("worker stopped")
}
