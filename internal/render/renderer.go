package render

import (
	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/cellcache"
	"github.com/KevinKickass/GridDeck/internal/input"
	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/session"
)

// Banner is a status display layered over the clip cells
type Banner string

const (
	BannerNone     Banner = ""
	BannerWaiting  Banner = "waiting_for_host"
	BannerOffline  Banner = "host_offline"
	BannerMismatch Banner = "grid_out_of_range"
)

const (
	colorFlash     = 0xFFFFFF
	colorStopFlash = 0xFF0000
	colorPlaying   = 0x00E000
	colorTriggered = 0xFFB000
	colorOverlay   = 0x2020FF
	colorBurger    = 0xFFFFFF
	colorOffline   = 0xFF0000

	colorWashWaiting  = 0x000030
	colorWashMismatch = 0x402000
)

// offlineKey carries the host-offline badge; the rest of the grid
// keeps showing the last known state while the peer is gone.
const offlineKey = 0

// Renderer owns the visual state of one panel: clip cells, the reveal
// overlay and full-grid status banners. It remembers the last written
// color per key so redundant hardware writes are skipped. Single
// goroutine use only, each device engine owns one.
type Renderer struct {
	panel  Panel
	mode   session.ScrollMode
	logger *zap.Logger

	brightness int
	revealed   bool
	banner     Banner

	desired [input.KeyCount]uint32
	screen  [input.KeyCount]uint32
	written [input.KeyCount]bool
}

func NewRenderer(panel Panel, mode session.ScrollMode, brightness int, logger *zap.Logger) *Renderer {
	return &Renderer{
		panel:      panel,
		mode:       mode,
		logger:     logger,
		brightness: brightness,
	}
}

// Apply paints a batch of cell redraws. Cells hidden by an active banner
// or overlay key are remembered and restored once the cover goes away.
func (r *Renderer) Apply(redraws []cellcache.Redraw) {
	for _, rd := range redraws {
		key := input.SlotToKey(rd.Slot.Col, rd.Slot.Row)
		if key < 0 || key >= input.KeyCount {
			continue
		}
		r.desired[key] = colorForCell(rd.Cell, rd.Known, rd.Flash)
		if r.covered(key) {
			continue
		}
		r.writeKey(key, r.desired[key])
	}
}

// SetRevealed toggles the overlay layer and repaints the keys it covers
func (r *Renderer) SetRevealed(revealed bool) {
	if r.revealed == revealed {
		return
	}
	r.revealed = revealed
	if r.banner != BannerNone {
		return
	}
	for key, color := range r.overlayColors() {
		if revealed {
			r.writeRaw(key, color)
		} else {
			r.writeKey(key, r.desired[key])
		}
	}
}

// SetBanner switches the status display. Waiting and mismatch wash the
// whole grid; offline freezes the displayed content and only marks one
// key, so the operator keeps the last known picture.
func (r *Renderer) SetBanner(b Banner) {
	if r.banner == b {
		return
	}
	r.banner = b
	r.repaintAll()
}

// Banner returns the currently shown status wash
func (r *Renderer) Banner() Banner {
	return r.banner
}

// SetBrightness rescales and rewrites the whole grid
func (r *Renderer) SetBrightness(level int) {
	if level < 0 {
		level = 0
	}
	if level > 10 {
		level = 10
	}
	if r.brightness == level {
		return
	}
	r.brightness = level
	r.repaintAll()
}

func (r *Renderer) Brightness() int {
	return r.brightness
}

// Blank clears the hardware, used on shutdown and device teardown
func (r *Renderer) Blank() {
	if err := r.panel.Clear(); err != nil {
		r.logger.Warn("Panel clear failed", zap.Error(err))
	}
	for key := range r.screen {
		r.screen[key] = 0
		r.written[key] = false
	}
}

// Identify flashes the whole grid once so the operator can tell which
// panel just paired. The caller repaints via Refresh when the flash is
// over; nothing here is remembered as desired state.
func (r *Renderer) Identify() {
	for key := 0; key < input.KeyCount; key++ {
		r.writeRaw(key, colorFlash)
	}
}

// Refresh rewrites the grid from the current desired state
func (r *Renderer) Refresh() {
	r.repaintAll()
}

func (r *Renderer) repaintAll() {
	if wash, washed := r.washColor(); washed {
		for key := 0; key < input.KeyCount; key++ {
			r.writeKey(key, wash)
		}
		return
	}
	overlay := map[int]uint32{}
	if r.banner == BannerNone && r.revealed {
		overlay = r.overlayColors()
	}
	for key := 0; key < input.KeyCount; key++ {
		switch {
		case r.banner == BannerOffline && key == offlineKey:
			r.writeRaw(key, colorOffline)
		default:
			if color, ok := overlay[key]; ok {
				r.writeRaw(key, color)
			} else {
				r.writeKey(key, r.desired[key])
			}
		}
	}
}

// covered reports whether a key is currently hidden by a banner or an
// overlay control key.
func (r *Renderer) covered(key int) bool {
	switch r.banner {
	case BannerWaiting, BannerMismatch:
		return true
	case BannerOffline:
		return key == offlineKey
	}
	if !r.revealed {
		return false
	}
	_, ok := r.overlayColors()[key]
	return ok
}

func (r *Renderer) overlayColors() map[int]uint32 {
	switch r.mode {
	case session.ModeBoth, session.ModeBothReset:
		return map[int]uint32{
			input.KeyBurger:     colorBurger,
			input.KeyBrightness: brightnessColor(r.brightness),
			input.KeyArrowUp:    colorOverlay,
			input.KeyArrowDown:  colorOverlay,
			input.KeyArrowLeft:  colorOverlay,
			input.KeyArrowRight: colorOverlay,
		}
	default:
		return map[int]uint32{}
	}
}

func (r *Renderer) washColor() (uint32, bool) {
	switch r.banner {
	case BannerWaiting:
		return colorWashWaiting, true
	case BannerMismatch:
		return colorWashMismatch, true
	default:
		return 0, false
	}
}

func (r *Renderer) writeKey(key int, color uint32) {
	r.put(key, scale(color, r.brightness))
}

// writeRaw bypasses the global brightness scale. Overlay control keys
// stay readable even when the grid is dimmed to black.
func (r *Renderer) writeRaw(key int, color uint32) {
	r.put(key, color)
}

func (r *Renderer) put(key int, final uint32) {
	if r.written[key] && r.screen[key] == final {
		return
	}
	if err := r.panel.SetKey(key, final); err != nil {
		r.logger.Warn("Panel write failed", zap.Int("key", key), zap.Error(err))
		return
	}
	r.screen[key] = final
	r.written[key] = true
}

// colorForCell maps clip playback state to a pad color. Unknown cells
// and absent slots stay dark.
func colorForCell(c cellcache.Cell, known bool, flash cellcache.FlashKind) uint32 {
	switch flash {
	case cellcache.FlashPress:
		return colorFlash
	case cellcache.FlashStop:
		return colorStopFlash
	}
	if !known {
		return 0
	}
	switch c.State {
	case protocol.StatePlaying:
		if c.Color == 0 {
			return colorPlaying
		}
		return c.Color
	case protocol.StateTriggered:
		return colorTriggered
	case protocol.StateStopped, protocol.StateIdle:
		return dim(c.Color)
	default:
		return 0
	}
}

// dim scales a clip color down so stopped clips read as armed, not live
func dim(color uint32) uint32 {
	r := (color >> 16 & 0xFF) * 35 / 100
	g := (color >> 8 & 0xFF) * 35 / 100
	b := (color & 0xFF) * 35 / 100
	return r<<16 | g<<8 | b
}

// brightnessColor turns the current level into a white ramp for the
// revealed brightness key, with a faint floor so level 0 stays findable
func brightnessColor(level int) uint32 {
	c := uint32(0x20 + level*(0xFF-0x20)/10)
	return c<<16 | c<<8 | c
}

// scale applies the global brightness level, 0 blanks the grid
func scale(color uint32, level int) uint32 {
	if level >= 10 {
		return color
	}
	if level <= 0 {
		return 0
	}
	r := (color >> 16 & 0xFF) * uint32(level) / 10
	g := (color >> 8 & 0xFF) * uint32(level) / 10
	b := (color & 0xFF) * uint32(level) / 10
	return r<<16 | g<<8 | b
}
