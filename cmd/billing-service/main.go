package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/Billing-microservice/config"
	"github.com/Dhoini/Billing-microservice/internal/app"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load config", "error", err)
	}

	log := logger.New(logger.ParseLevel(cfg.App.LogLevel))
	log.Infow("Starting billing service", "name", cfg.App.Name, "addr", cfg.App.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer application.Close()

	go application.RenewalWorker.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Infow("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Errorw("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Graceful shutdown failed", "error", err)
	}

	log.Infow("Billing service stopped")
}
