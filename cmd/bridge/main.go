package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/config"
	"github.com/KevinKickass/GridDeck/internal/system"
)

func main() {
	configPath := flag.String("config", "configs/griddeck.yaml", "path to config file")
	flag.Parse()

	// Logger initialisieren
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Config loaded successfully", zap.String("file", *configPath))

	// Lifecycle Manager
	lifecycle, err := system.NewLifecycleManager(cfg, *configPath, logger)
	if err != nil {
		logger.Fatal("Failed to create lifecycle manager", zap.Error(err))
	}

	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start bridge", zap.Error(err))
	}

	logger.Info("GridDeck bridge started successfully")

	// Graceful Shutdown auf Signal, sofortiger Abbruch bei Fatal-Fehler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case <-lifecycle.Done():
		if err := lifecycle.Err(); err != nil {
			logger.Error("Bridge failed", zap.Error(err))
			failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			lifecycle.Shutdown(failCtx)
			cancel()
			logger.Sync()
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("GridDeck bridge stopped successfully")
}
