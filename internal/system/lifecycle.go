package system

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/api/rest"
	"github.com/KevinKickass/GridDeck/internal/api/websocket"
	"github.com/KevinKickass/GridDeck/internal/bridge"
	"github.com/KevinKickass/GridDeck/internal/config"
)

// LifecycleManager wires the device manager, the WebSocket hub and the
// REST API together and owns their startup/shutdown order.
type LifecycleManager struct {
	config  *config.Config
	cfgPath string
	logger  *zap.Logger

	manager    *bridge.Manager
	wsHub      *websocket.Hub
	restServer *rest.Server

	cancel context.CancelFunc
	done   chan struct{}

	stateMu      sync.RWMutex
	currentState SystemState
	runErr       error

	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, cfgPath string, logger *zap.Logger) (*LifecycleManager, error) {
	wsHub := websocket.NewHub(logger)

	manager, err := bridge.NewManager(cfg, cfgPath, logger, func(ev bridge.StatusEvent) {
		wsHub.Broadcast(websocket.NewMessage(messageType(ev.Kind), ev))
	})
	if err != nil {
		return nil, err
	}
	wsHub.SetSnapshotProvider(deviceSnapshot{manager})

	return &LifecycleManager{
		config:       cfg,
		cfgPath:      cfgPath,
		logger:       logger,
		manager:      manager,
		wsHub:        wsHub,
		currentState: StateInitializing,
		done:         make(chan struct{}),
	}, nil
}

// Manager returns the device manager
func (lm *LifecycleManager) Manager() *bridge.Manager {
	return lm.manager
}

// Start starts the entire bridge process
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting bridge")
	lm.setState(StateInitializing)

	ctx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	go lm.wsHub.Run()

	go func() {
		defer close(lm.done)
		if err := lm.manager.Run(ctx); err != nil && ctx.Err() == nil {
			// a dead transport socket means the bridge is headless;
			// surface it instead of idling
			lm.logger.Error("Device manager failed", zap.Error(err))
			lm.stateMu.Lock()
			lm.runErr = err
			lm.currentState = StateError
			lm.stateMu.Unlock()
		}
	}()

	lm.restServer = rest.NewServer(lm.config, lm.manager, lm.logger, lm.wsHub)
	if err := lm.restServer.Start(); err != nil {
		lm.setState(StateError)
		return err
	}

	// Hot-reload for the runtime-tunable settings
	config.Watch(lm.logger, func(cfg *config.Config) {
		if cfg.Bridge.Brightness != lm.config.Bridge.Brightness {
			lm.manager.SetBrightness(cfg.Bridge.Brightness)
		}
	})

	lm.setState(StateRunning)
	lm.logger.Info("Bridge started",
		zap.Int("devices", len(lm.config.Devices)),
		zap.Int("http_port", lm.config.Bridge.HTTPPort),
		zap.String("scroll_mode", lm.config.Bridge.ScrollMode))

	return nil
}

// Shutdown gracefully shuts down the bridge. Engines blank their
// hardware on the way out.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down bridge")
		lm.setState(StateStopping)

		if lm.restServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				shutdownErr = err
			}
		}

		lm.cancel()
		select {
		case <-lm.done:
		case <-ctx.Done():
			lm.logger.Warn("Shutdown timeout, forcing stop")
			shutdownErr = ctx.Err()
		}

		lm.setState(StateStopped)
	})

	return shutdownErr
}

// Done closes when the device manager has stopped, cleanly or not
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.done
}

// Err returns the fatal error that stopped the device manager, if any
func (lm *LifecycleManager) Err() error {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.runErr
}

// State returns the current lifecycle state
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = state
}

// deviceSnapshot adapts the manager to the hub's snapshot interface
type deviceSnapshot struct {
	manager *bridge.Manager
}

func (s deviceSnapshot) Snapshot() any {
	return s.manager.Statuses()
}

func messageType(kind string) websocket.MessageType {
	switch kind {
	case "brightness":
		return websocket.MessageTypeBrightness
	case "banner":
		return websocket.MessageTypeBanner
	default:
		return websocket.MessageTypePeerState
	}
}
