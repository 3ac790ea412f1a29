package adapter

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/cellcache"
	"github.com/KevinKickass/GridDeck/internal/host"
	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/session"
)

// pollInterval bounds how stale a rendered cell can get when an
// individual update datagram is lost
const pollInterval = 100 * time.Millisecond

// Link is the datagram channel to the bridge process
type Link interface {
	Send(msg protocol.Message)
	Inbound() <-chan protocol.Message
	SetDebug(debug bool)
}

// Engine is the adapter side of one device link. It polls the host,
// diffs every visible cell against what it last told the bridge and
// sends only the changes. The bridge's refresh requests and the
// periodic poll make the pair converge even when datagrams are lost.
// All state is owned by the Run goroutine.
type Engine struct {
	order    int
	host     host.Host
	link     Link
	window   *session.Window
	sent     *cellcache.Cache
	logger   *zap.Logger
	announce time.Duration

	configured    bool
	mismatchShown bool
}

func NewEngine(order int, h host.Host, link Link, mode session.ScrollMode, announce time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		order:    order,
		host:     h,
		link:     link,
		window:   session.NewWindow(mode, 0),
		sent:     cellcache.New(),
		logger:   logger.With(zap.Int("display_order", order)),
		announce: announce,
	}
}

// Run drives the engine until the context ends or the link dies
func (e *Engine) Run(ctx context.Context) error {
	announce := time.NewTicker(e.announce)
	defer announce.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	e.link.Send(protocol.NewAnnounceAdapter(e.order))

	for {
		select {
		case <-ctx.Done():
			e.link.Send(protocol.NewDocumentClosing(e.order))
			return ctx.Err()
		case <-announce.C:
			e.link.Send(protocol.NewAnnounceAdapter(e.order))
			if !e.configured {
				e.link.Send(protocol.NewConfigRequest(e.order))
			}
			if e.mismatchShown {
				// keep an active mismatch visible to a peer that
				// restarted between change notifications
				e.link.Send(protocol.NewStructuralMismatch(e.order, true))
			}
		case <-poll.C:
			e.poll(time.Now())
		case ev, ok := <-e.host.Events():
			if !ok {
				return nil
			}
			e.handleHostEvent(ev, time.Now())
		case msg, ok := <-e.link.Inbound():
			if !ok {
				e.logger.Error("Link closed")
				return ErrLinkClosed
			}
			e.handleMessage(msg, time.Now())
		}
	}
}

// poll reconciles the host's current state against everything already
// sent. Structure first, then every visible cell.
func (e *Engine) poll(now time.Time) {
	tracks, scenes := e.host.Structure()
	ev := e.window.ApplyStructure(tracks, scenes)
	if ev.MismatchChanged {
		e.sendMismatch(ev.Mismatch)
	}
	if ev.Changed {
		// clamping moved the window, every slot shows new content
		e.sent.Invalidate()
	}
	if e.window.Mismatch() {
		return
	}

	for row := 0; row < session.VisibleRows; row++ {
		for col := 0; col < session.VisibleCols; col++ {
			cell := e.readCell(col, row)
			slot := cellcache.Slot{Col: col, Row: row}
			if _, changed := e.sent.Ingest(slot, cell, now); !changed {
				continue
			}
			e.link.Send(protocol.NewClipInfo(e.order, protocol.ClipInfoData{
				Track:    col,
				Scene:    row,
				Key:      cell.Key,
				Name:     cell.Name,
				Color:    cell.Color,
				State:    cell.State,
				Progress: cell.Progress,
			}))
		}
	}
}

func (e *Engine) readCell(col, row int) cellcache.Cell {
	track, scene := e.window.ToAbsolute(col, row)
	clip, ok := e.host.ClipAt(track, scene)
	if !ok {
		return cellcache.Cell{State: protocol.StateAbsent}
	}
	return cellcache.Cell{
		Key:      clip.Key,
		Name:     clip.Name,
		Color:    clip.Color,
		State:    clip.State,
		Progress: quantizeProgress(clip.Progress),
	}
}

func (e *Engine) handleMessage(msg protocol.Message, now time.Time) {
	if msg.DisplayOrder != e.order {
		return
	}

	switch msg.Type {
	case protocol.TypeAnnounceHost:
		// heartbeat only

	case protocol.TypeConfig:
		data, ok := msg.Data.(protocol.ConfigData)
		if !ok {
			return
		}
		e.link.SetDebug(data.DebugMode)
		ev := e.window.SetSeed(data.HOffset, !e.configured)
		if !e.configured {
			e.configured = true
			e.logger.Info("Configured by bridge", zap.Int("h_offset", data.HOffset), zap.Bool("debug", data.DebugMode))
		}
		if ev.Changed {
			e.sent.Invalidate()
			e.poll(now)
		}

	case protocol.TypeTriggerClip:
		data, ok := msg.Data.(protocol.TriggerClipData)
		if !ok {
			return
		}
		track, scene := e.window.ToAbsolute(data.TrackOffset, data.SceneOffset)
		if err := e.host.TriggerClip(track, scene); err != nil {
			e.logger.Warn("Trigger rejected", zap.Int("track", track), zap.Int("scene", scene), zap.Error(err))
		}

	case protocol.TypeScroll:
		data, ok := msg.Data.(protocol.ScrollData)
		if !ok {
			return
		}
		ev := e.window.Scroll(data.Direction)
		if ev.MismatchChanged {
			e.sendMismatch(ev.Mismatch)
		}
		if ev.Changed {
			// full level resend so a datagram lost before the scroll
			// cannot leave a stale cell behind
			e.sent.Invalidate()
			e.poll(now)
		}

	case protocol.TypeRefresh:
		// bridge lost its picture, resend everything it can see
		e.sent.Invalidate()
		e.mismatchShown = e.window.Mismatch()
		if e.mismatchShown {
			e.link.Send(protocol.NewStructuralMismatch(e.order, true))
		}
		e.poll(now)
	}
}

func (e *Engine) handleHostEvent(ev host.Event, now time.Time) {
	switch ev.Type {
	case host.EventTrackStopped:
		trackOffset, _ := e.window.Offsets()
		col := ev.Track - trackOffset
		if col < 0 || col >= session.VisibleCols {
			return
		}
		e.link.Send(protocol.NewTrackStopped(e.order, col, ev.WasPlaying))
		e.poll(now)

	case host.EventStructureChanged:
		e.poll(now)

	case host.EventDocumentClosing:
		e.link.Send(protocol.NewDocumentClosing(e.order))
		e.window.Reset()
		e.sent.Invalidate()
	}
}

func (e *Engine) sendMismatch(show bool) {
	if e.mismatchShown == show {
		return
	}
	e.mismatchShown = show
	e.link.Send(protocol.NewStructuralMismatch(e.order, show))
	if show {
		e.logger.Warn("Window outside host grid")
	}
}

// quantizeProgress rounds playback progress down to sixteenths so a
// steadily advancing clip produces 16 updates per cycle, not hundreds
func quantizeProgress(p float64) float64 {
	if p <= 0 || math.IsNaN(p) {
		return 0
	}
	if p >= 1 {
		return 1
	}
	return math.Floor(p*16) / 16
}
