package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"farecast/config"
	"farecast/logging"
	"farecast/ml"
	"farecast/monitoring"
	"farecast/pipeline"
	"farecast/server"
	"farecast/store"
	"farecast/trips"
)

const configPath = "config.yaml"

func main() {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logging
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 3. Audit store
	audit, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("failed to open audit store", zap.Error(err))
	}
	defer audit.Close()

	// 4. Prediction server
	registry := ml.NewRegistry()
	cleaner := pipeline.NewCleaner(true)
	trainer := server.NewTrainer(trips.PostgresSource{}, registry, cleaner, logger)

	srv, err := server.New(server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		MaxConns:        cfg.Server.MaxConns,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}, registry, trainer, audit, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 5. Monitoring hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := monitoring.NewHub(srv.Metrics().Snapshot, logger)
	hub.Start(ctx, cfg.Monitor.Port)

	// 6. Hot-reload of server limits
	stopWatch, err := config.Watch(configPath,
		func(limits config.Limits) {
			srv.SetLimits(limits.MaxConns, limits.MaxMessageBytes)
			logger.Info("limits reloaded",
				zap.Int("max_conns", limits.MaxConns),
				zap.Int("max_message_bytes", limits.MaxMessageBytes))
		},
		func(err error) {
			logger.Warn("config reload failed", zap.Error(err))
		})
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	} else {
		defer stopWatch()
	}

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	hub.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
