package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/immo-leads/internal/api"
	"github.com/ignite/immo-leads/internal/app"
	"github.com/ignite/immo-leads/internal/config"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

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
		Service:   "immo-api",
		RedactPII: cfg.Logging.RedactPII,
	})
	defer logger.Sync()

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		logger.Error("pre-flight check failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, true)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handlers := a.Handlers()
	handlers.SetBackgroundContext(ctx)

	// The scheduler always backs the admin run-now endpoint; its loop only
	// runs here when no separate worker is deployed.
	scheduler := a.Scheduler()
	handlers.SetSequenceRunner(scheduler)
	var status api.SchedulerStatus
	if cfg.Server.RunScheduler && cfg.Sequence.Enabled {
		if err := scheduler.Start(); err != nil {
			logger.Error("sequence scheduler failed to start", "error", err)
		} else {
			defer scheduler.Stop()
			status = scheduler
			logger.Info("sequence scheduler started", "interval", cfg.Sequence.TickInterval().String())
		}
	}
	if janitor := a.Janitor(); janitor != nil {
		janitor.Start()
		defer janitor.Stop()
	}

	server := api.NewServer(handlers, a.RouterConfig(status))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			done <- syscall.SIGTERM
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	// Background campaign sends have returned or been abandoned.
	cancel()
	logger.Info("server stopped")
}
