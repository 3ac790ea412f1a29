package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/config"
	"github.com/KevinKickass/GridDeck/internal/panel"
	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/session"
	"github.com/KevinKickass/GridDeck/internal/transport"
)

// Manager owns one engine per configured device plus their sockets and
// hardware handles. It is the surface the REST layer talks to.
type Manager struct {
	cfg     *config.Config
	cfgPath string
	mode    session.ScrollMode
	logger  *zap.Logger
	publish func(StatusEvent)

	// overridable for tests
	openDevice func(serial string, logger *zap.Logger) (Device, error)
	openLink   func(order int, debug bool, logger *zap.Logger) (Link, func() error, error)

	mu      sync.RWMutex
	engines map[int]*Engine
}

func NewManager(cfg *config.Config, cfgPath string, logger *zap.Logger, publish func(StatusEvent)) (*Manager, error) {
	mode, err := session.ParseScrollMode(cfg.Bridge.ScrollMode)
	if err != nil {
		return nil, err
	}
	if publish == nil {
		publish = func(StatusEvent) {}
	}
	return &Manager{
		cfg:     cfg,
		cfgPath: cfgPath,
		mode:    mode,
		logger:  logger,
		publish: publish,
		openDevice: func(serial string, logger *zap.Logger) (Device, error) {
			return panel.Open(serial, logger)
		},
		openLink: func(order int, debug bool, logger *zap.Logger) (Link, func() error, error) {
			ep, err := transport.NewEndpoint(protocol.BridgePort(order), protocol.AdapterPort(order), debug, logger)
			if err != nil {
				return nil, nil, err
			}
			return ep, ep.Close, nil
		},
		engines: make(map[int]*Engine),
	}, nil
}

// Run opens every configured device and drives its engine until the
// context ends. A device that cannot be opened is skipped with an
// error log, the remaining devices still come up. A port that cannot
// be bound is a configuration fault and fails the whole start, and an
// engine losing its link or hardware at runtime takes the manager down
// with it so the fault reaches the operator.
func (m *Manager) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var closers []func() error
	fatal := make(chan error, len(m.cfg.Devices))

	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	for _, d := range m.cfg.Devices {
		dev, err := m.openDevice(d.Serial, m.logger)
		if err != nil {
			m.logger.Error("Device unavailable, skipping",
				zap.String("serial", d.Serial),
				zap.Int("display_order", d.DisplayOrder),
				zap.Error(err))
			continue
		}
		closers = append(closers, dev.Close)

		link, closeLink, err := m.openLink(d.DisplayOrder, m.cfg.Bridge.DebugMode, m.logger)
		if err != nil {
			return fmt.Errorf("device %d: %w", d.DisplayOrder, err)
		}
		closers = append(closers, closeLink)

		engine := NewEngine(d, m.cfg.Bridge, m.cfg.Timing, m.mode, dev, link, m.logger, m.publish)
		m.mu.Lock()
		m.engines[d.DisplayOrder] = engine
		m.mu.Unlock()

		m.logger.Info("Device started",
			zap.String("serial", d.Serial),
			zap.Int("display_order", d.DisplayOrder),
			zap.Int("recv_port", protocol.BridgePort(d.DisplayOrder)))

		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			if err := e.Run(runCtx); err != nil && runCtx.Err() == nil {
				m.logger.Error("Engine stopped", zap.Int("display_order", e.order), zap.Error(err))
				fatal <- fmt.Errorf("device %d: %w", e.order, err)
			}
		}(engine)
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-fatal:
		runErr = err
	}
	cancel()
	wg.Wait()
	return runErr
}

// Statuses returns a snapshot of every running engine, ordered by
// display order
func (m *Manager) Statuses() []EngineStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]EngineStatus, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// Status returns the snapshot for one display order
func (m *Manager) Status(displayOrder int) (EngineStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.engines[displayOrder]
	if !ok {
		return EngineStatus{}, false
	}
	return e.Status(), true
}

// SetBrightness applies a new global brightness level to every engine
// and persists it so the next start comes up the same way
func (m *Manager) SetBrightness(level int) error {
	if level < 0 || level > 10 {
		return fmt.Errorf("brightness %d out of range", level)
	}

	m.mu.RLock()
	for _, e := range m.engines {
		e.SetBrightness(level)
	}
	m.mu.RUnlock()

	m.cfg.Bridge.Brightness = level
	if err := m.cfg.Save(m.cfgPath); err != nil {
		m.logger.Warn("Brightness not persisted", zap.Error(err))
	}
	return nil
}
