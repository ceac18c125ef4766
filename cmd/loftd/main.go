// Command loftd runs the Loft asset service: the HTTP API, the asset
// catalog, blob storage, and the background session sweeper.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"loft/internal/catalog"
	"loft/internal/config"
	"loft/internal/daemon"
	"loft/internal/logging"
	"loft/internal/preflight"
	"loft/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	for _, result := range preflight.RunAll(ctx, cfg) {
		if !result.Passed {
			logger.Warn("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		}
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open asset catalog", logging.Error(err))
		return
	}

	backend, err := storage.New(cfg, logger)
	if err != nil {
		logger.Error("init blob storage", logging.Error(err))
		store.Close()
		return
	}

	d, err := daemon.New(cfg, store, backend, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("loftd shutting down")
}
