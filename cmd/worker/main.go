package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/immo-leads/internal/app"
	"github.com/ignite/immo-leads/internal/config"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(logger.Config{
		Env:       cfg.Logging.Env,
		Level:     cfg.Logging.Level,
		Service:   "immo-worker",
		RedactPII: cfg.Logging.RedactPII,
	})
	defer logger.Sync()

	if !cfg.Sequence.Enabled {
		logger.Warn("sequence.enabled is false, nothing to run")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	a, err := app.New(ctx, cfg, false)
	cancel()
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	scheduler := a.Scheduler()
	if err := scheduler.Start(); err != nil {
		logger.Error("sequence scheduler failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("sequence scheduler started",
		"interval", cfg.Sequence.TickInterval().String(),
		"batch_size", cfg.Sequence.BatchSize,
		"day_offsets", cfg.Sequence.DayOffsets)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	scheduler.Stop()
	logger.Info("worker stopped")
}
