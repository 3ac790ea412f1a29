package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/adapter"
	"github.com/KevinKickass/GridDeck/internal/host"
	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/session"
	"github.com/KevinKickass/GridDeck/internal/transport"
)

func main() {
	order := flag.Int("order", 0, "display order of the device to serve")
	mode := flag.String("scroll-mode", "vertical", "scroll mode: none, vertical, both, both-reset")
	tracks := flag.Int("tracks", 16, "demo session track count")
	scenes := flag.Int("scenes", 8, "demo session scene count")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	scrollMode, err := session.ParseScrollMode(*mode)
	if err != nil {
		logger.Fatal("Invalid scroll mode", zap.Error(err))
	}

	endpoint, err := transport.NewEndpoint(protocol.AdapterPort(*order), protocol.BridgePort(*order), false, logger)
	if err != nil {
		logger.Fatal("Failed to bind adapter port", zap.Error(err))
	}
	defer endpoint.Close()

	demo := host.NewDemo(*tracks, *scenes)
	engine := adapter.NewEngine(*order, demo, endpoint, scrollMode, time.Second, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go demo.Run(ctx, 250*time.Millisecond)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	logger.Info("GridDeck adapter started",
		zap.Int("display_order", *order),
		zap.Int("recv_port", protocol.AdapterPort(*order)),
		zap.String("scroll_mode", *mode))

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Adapter stopped", zap.Error(err))
	}

	logger.Info("GridDeck adapter stopped successfully")
}
