package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/cellcache"
	"github.com/KevinKickass/GridDeck/internal/config"
	"github.com/KevinKickass/GridDeck/internal/input"
	"github.com/KevinKickass/GridDeck/internal/peer"
	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/render"
	"github.com/KevinKickass/GridDeck/internal/session"
)

const (
	housekeepInterval  = 50 * time.Millisecond
	maxRefreshAttempts = 5
)

// Device is the physical panel an engine drives
type Device interface {
	render.Panel
	Events() <-chan input.Event
	Serial() string
}

// Link is the datagram channel to the adapter process
type Link interface {
	Send(msg protocol.Message)
	Inbound() <-chan protocol.Message
}

// StatusEvent is pushed to observers whenever engine state changes
type StatusEvent struct {
	DisplayOrder int           `json:"display_order"`
	Kind         string        `json:"kind"` // peer, brightness, banner
	PeerState    peer.State    `json:"peer_state,omitempty"`
	Brightness   int           `json:"brightness,omitempty"`
	Banner       render.Banner `json:"banner,omitempty"`
}

// EngineStatus is the REST snapshot for one device
type EngineStatus struct {
	DisplayOrder int           `json:"display_order"`
	Serial       string        `json:"serial"`
	Peer         peer.Status   `json:"peer"`
	Brightness   int           `json:"brightness"`
	Banner       render.Banner `json:"banner"`
}

// Engine runs one device: it turns key presses into commands for the
// adapter and reconciles incoming level updates onto the hardware. All
// mutable state is owned by the Run goroutine; the ctrl channel is the
// only way in from outside.
type Engine struct {
	order  int
	cfg    config.DeviceConfig
	timing config.TimingConfig
	debug  bool

	device   Device
	link     Link
	registry *peer.Registry
	interp   *input.Interpreter
	renderer *render.Renderer
	cache    *cellcache.Cache
	logger   *zap.Logger
	notify   func(StatusEvent)

	defaultBrightness int

	// reconvergence after (re)contact or a window move
	awaitingSync    bool
	refreshAttempts int
	nextRefresh     time.Time

	identifyUntil time.Time

	ctrl chan ctrlMsg

	statusMu   sync.Mutex
	brightness int
	banner     render.Banner
}

type ctrlMsg struct {
	brightness int
}

func NewEngine(cfg config.DeviceConfig, bridgeCfg config.BridgeConfig, timing config.TimingConfig, mode session.ScrollMode, device Device, link Link, logger *zap.Logger, notify func(StatusEvent)) *Engine {
	log := logger.With(zap.Int("display_order", cfg.DisplayOrder), zap.String("serial", device.Serial()))
	e := &Engine{
		order:             cfg.DisplayOrder,
		cfg:               cfg,
		timing:            timing,
		debug:             bridgeCfg.DebugMode,
		device:            device,
		link:              link,
		registry:          peer.NewRegistry(timing.LivenessTimeout, log),
		interp:            input.New(mode, timing.LongPress),
		renderer:          render.NewRenderer(device, mode, bridgeCfg.Brightness, log),
		cache:             cellcache.New(),
		logger:            log,
		notify:            notify,
		defaultBrightness: bridgeCfg.Brightness,
		ctrl:              make(chan ctrlMsg, 4),
		brightness:        bridgeCfg.Brightness,
	}
	if e.notify == nil {
		e.notify = func(StatusEvent) {}
	}
	return e
}

// Run drives the engine until the context ends or the link dies
func (e *Engine) Run(ctx context.Context) error {
	announce := time.NewTicker(e.timing.AnnounceInterval)
	defer announce.Stop()
	configPush := time.NewTicker(e.timing.ConfigPush)
	defer configPush.Stop()
	liveness := time.NewTicker(e.timing.LivenessSweep)
	defer liveness.Stop()
	housekeep := time.NewTicker(housekeepInterval)
	defer housekeep.Stop()

	// blank on every exit path, not just a clean shutdown
	defer e.renderer.Blank()

	e.setBanner(render.BannerWaiting)
	e.link.Send(protocol.NewAnnounceHost(e.order))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-announce.C:
			e.link.Send(protocol.NewAnnounceHost(e.order))
		case <-configPush.C:
			if e.registry.Online(e.order) {
				e.sendConfig()
			}
		case <-liveness.C:
			e.tickLiveness(time.Now())
		case <-housekeep.C:
			e.tickHousekeeping(time.Now())
		case ev, ok := <-e.device.Events():
			if !ok {
				e.logger.Error("Device event stream closed")
				return ErrDeviceLost
			}
			for _, cmd := range e.interp.Handle(ev) {
				e.handleCommand(cmd, ev.At)
			}
		case msg, ok := <-e.link.Inbound():
			if !ok {
				e.logger.Error("Link closed")
				return ErrLinkClosed
			}
			e.handleMessage(msg, time.Now())
		case c := <-e.ctrl:
			e.applyControl(c)
		}
	}
}

// SetBrightness asks the engine to change its brightness level. Safe to
// call from any goroutine.
func (e *Engine) SetBrightness(level int) {
	select {
	case e.ctrl <- ctrlMsg{brightness: level}:
	default:
	}
}

// Status returns a point-in-time snapshot for the REST layer
func (e *Engine) Status() EngineStatus {
	peerStatus, _ := e.registry.Status(e.order)
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return EngineStatus{
		DisplayOrder: e.order,
		Serial:       e.device.Serial(),
		Peer:         peerStatus,
		Brightness:   e.brightness,
		Banner:       e.banner,
	}
}

func (e *Engine) handleMessage(msg protocol.Message, now time.Time) {
	if msg.DisplayOrder != e.order {
		return
	}

	// every inbound message counts as a heartbeat
	if tr, changed := e.registry.Touch(e.order, now); changed {
		e.onPeerOnline(tr, now)
	}

	switch msg.Type {
	case protocol.TypeAnnounceAdapter:
		// heartbeat only

	case protocol.TypeConfigRequest:
		e.sendConfig()

	case protocol.TypeClipInfo:
		data, ok := msg.Data.(protocol.ClipInfoData)
		if !ok {
			return
		}
		e.markSynced()
		slot := cellcache.Slot{Col: data.Track, Row: data.Scene}
		if rd, changed := e.cache.Ingest(slot, cellcache.FromClipInfo(data), now); changed {
			e.renderer.Apply([]cellcache.Redraw{rd})
		}

	case protocol.TypeTrackStopped:
		data, ok := msg.Data.(protocol.TrackStoppedData)
		if !ok {
			return
		}
		duration := e.timing.StopFlashIdle
		if data.WasPlaying {
			duration = e.timing.StopFlashPlaying
		}
		e.renderer.Apply(e.cache.IngestTrackStopped(data.TrackIndex, now, duration))

	case protocol.TypeStructuralMismatch:
		data, ok := msg.Data.(protocol.StructuralMismatchData)
		if !ok {
			return
		}
		if data.Show {
			e.setBanner(render.BannerMismatch)
		} else if e.renderer.Banner() == render.BannerMismatch {
			e.setBanner(render.BannerNone)
		}

	case protocol.TypeDocumentClosing:
		e.logger.Info("Host document closing")
		e.cache.Invalidate()
		e.awaitingSync = false
		e.setBanner(render.BannerWaiting)
	}
}

func (e *Engine) handleCommand(cmd input.Command, now time.Time) {
	switch cmd.Type {
	case input.CmdTriggerClip:
		e.link.Send(protocol.NewTriggerClip(e.order, cmd.Col, cmd.Row))
		// immediate local feedback, reverts on its own
		slot := cellcache.Slot{Col: cmd.Col, Row: cmd.Row}
		if rd, ok := e.cache.FlashSlot(slot, now, e.timing.PressFlash); ok {
			e.renderer.Apply([]cellcache.Redraw{rd})
		}

	case input.CmdScroll:
		e.link.Send(protocol.NewScroll(e.order, cmd.Direction))
		// the window moved, so the adapter owes a fresh burst of cell
		// updates; re-request it if the burst gets lost
		e.awaitingSync = true
		e.refreshAttempts = 0
		e.nextRefresh = now.Add(e.timing.RefreshRetry)

	case input.CmdBrightnessCycle:
		e.setBrightness(input.CycleBrightness(e.renderer.Brightness()))

	case input.CmdBrightnessReset:
		e.setBrightness(e.defaultBrightness)

	case input.CmdRevealChanged:
		e.renderer.SetRevealed(cmd.Revealed)
	}
}

func (e *Engine) tickHousekeeping(now time.Time) {
	if !e.identifyUntil.IsZero() && !now.Before(e.identifyUntil) {
		e.identifyUntil = time.Time{}
		e.renderer.Refresh()
	}
	if redraws := e.cache.ExpireFlashes(now); len(redraws) > 0 {
		e.renderer.Apply(redraws)
	}
	for _, cmd := range e.interp.Tick(now) {
		e.handleCommand(cmd, now)
	}
	if e.awaitingSync && e.refreshAttempts < maxRefreshAttempts && !now.Before(e.nextRefresh) {
		e.link.Send(protocol.NewRefresh(e.order))
		e.refreshAttempts++
		e.nextRefresh = now.Add(e.timing.RefreshRetry)
		if e.refreshAttempts == maxRefreshAttempts {
			e.logger.Warn("Refresh retries exhausted, waiting for adapter traffic")
		}
	}
}

func (e *Engine) tickLiveness(now time.Time) {
	for _, tr := range e.registry.Tick(now) {
		if tr.DisplayOrder != e.order || tr.To != peer.StateOffline {
			continue
		}
		e.awaitingSync = false
		// the displayed content is frozen as-is; the cache empties so
		// reconvergence after resume repaints every cell
		e.cache.Invalidate()
		e.setBanner(render.BannerOffline)
		e.notify(StatusEvent{DisplayOrder: e.order, Kind: "peer", PeerState: peer.StateOffline})
	}
}

// onPeerOnline runs on every offline/unknown -> online transition:
// identify the adapter with its config, then pull the full picture.
func (e *Engine) onPeerOnline(tr peer.Transition, now time.Time) {
	if tr.FirstContact {
		e.renderer.Identify()
		e.identifyUntil = now.Add(e.timing.PressFlash)
	}
	e.sendConfig()
	e.link.Send(protocol.NewRefresh(e.order))
	e.awaitingSync = true
	e.refreshAttempts = 1
	e.nextRefresh = now.Add(e.timing.RefreshRetry)
	if e.renderer.Banner() == render.BannerOffline {
		e.setBanner(render.BannerWaiting)
	}
	e.notify(StatusEvent{DisplayOrder: e.order, Kind: "peer", PeerState: peer.StateOnline})
}

// markSynced records that the adapter is streaming content again
func (e *Engine) markSynced() {
	e.awaitingSync = false
	switch e.renderer.Banner() {
	case render.BannerWaiting, render.BannerOffline:
		e.setBanner(render.BannerNone)
	}
}

// applyControl handles an externally requested brightness change. The
// new level also becomes the value a sun-key long press resets to,
// matching whatever the operator last configured.
func (e *Engine) applyControl(c ctrlMsg) {
	if c.brightness >= 0 && c.brightness <= 10 {
		e.defaultBrightness = c.brightness
	}
	e.setBrightness(c.brightness)
}

func (e *Engine) setBrightness(level int) {
	if level < 0 || level > 10 {
		return
	}
	e.renderer.SetBrightness(level)
	e.statusMu.Lock()
	e.brightness = level
	e.statusMu.Unlock()
	e.notify(StatusEvent{DisplayOrder: e.order, Kind: "brightness", Brightness: level})
}

func (e *Engine) setBanner(b render.Banner) {
	if e.renderer.Banner() == b {
		return
	}
	e.renderer.SetBanner(b)
	e.statusMu.Lock()
	e.banner = b
	e.statusMu.Unlock()
	e.notify(StatusEvent{DisplayOrder: e.order, Kind: "banner", Banner: b})
}

func (e *Engine) sendConfig() {
	cfg := protocol.ConfigData{HOffset: e.cfg.HOffset, DebugMode: e.debug}
	e.registry.SetConfig(e.order, cfg)
	e.link.Send(protocol.NewConfig(e.order, cfg.HOffset, cfg.DebugMode))
}
