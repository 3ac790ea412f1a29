package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/cellcache"
	"github.com/KevinKickass/GridDeck/internal/input"
	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/session"
)

type fakePanel struct {
	keys    map[int]uint32
	writes  int
	cleared int
}

func newFakePanel() *fakePanel {
	return &fakePanel{keys: map[int]uint32{}}
}

func (p *fakePanel) SetKey(key int, color uint32) error {
	p.keys[key] = color
	p.writes++
	return nil
}

func (p *fakePanel) Clear() error {
	p.keys = map[int]uint32{}
	p.cleared++
	return nil
}

func (p *fakePanel) Close() error { return nil }

func redrawAt(col, row int, state protocol.PlayState, color uint32) cellcache.Redraw {
	return cellcache.Redraw{
		Slot:  cellcache.Slot{Col: col, Row: row},
		Cell:  cellcache.Cell{Color: color, State: state},
		Known: true,
	}
}

func TestApplyPaintsCells(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{redrawAt(2, 1, protocol.StatePlaying, 0x00FF00)})

	key := input.SlotToKey(2, 1)
	assert.Equal(t, uint32(0x00FF00), p.keys[key])
}

func TestRedundantWritesSkipped(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	rd := redrawAt(0, 0, protocol.StatePlaying, 0x112233)
	r.Apply([]cellcache.Redraw{rd})
	writes := p.writes
	r.Apply([]cellcache.Redraw{rd})
	assert.Equal(t, writes, p.writes)
}

func TestStoppedCellsDimmed(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{redrawAt(0, 0, protocol.StateStopped, 0xFF0000)})

	color := p.keys[input.SlotToKey(0, 0)]
	assert.Equal(t, uint32(0x590000), color)
}

func TestUnknownCellsStayDark(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{{Slot: cellcache.Slot{Col: 3, Row: 2}}})
	assert.Equal(t, uint32(0), p.keys[input.SlotToKey(3, 2)])
}

func TestPressFlashOverridesState(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	rd := redrawAt(1, 1, protocol.StateStopped, 0x00FF00)
	rd.Flash = cellcache.FlashPress
	r.Apply([]cellcache.Redraw{rd})
	assert.Equal(t, uint32(0xFFFFFF), p.keys[input.SlotToKey(1, 1)])
}

func TestStopFlashPaintsRed(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	rd := redrawAt(1, 1, protocol.StatePlaying, 0x00FF00)
	rd.Flash = cellcache.FlashStop
	r.Apply([]cellcache.Redraw{rd})
	assert.Equal(t, uint32(0xFF0000), p.keys[input.SlotToKey(1, 1)])
}

func TestOverlayCoversControlsAndRestores(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeBoth, 10, zap.NewNop())

	col, row := input.KeyToSlot(input.KeyArrowUp)
	r.Apply([]cellcache.Redraw{redrawAt(col, row, protocol.StatePlaying, 0x00FF00)})

	r.SetRevealed(true)
	assert.Equal(t, uint32(colorOverlay), p.keys[input.KeyArrowUp])
	assert.Equal(t, uint32(colorBurger), p.keys[input.KeyBurger])

	// a redraw under the overlay is deferred until the overlay drops
	r.Apply([]cellcache.Redraw{redrawAt(col, row, protocol.StateStopped, 0xFF0000)})
	assert.Equal(t, uint32(colorOverlay), p.keys[input.KeyArrowUp])

	r.SetRevealed(false)
	assert.Equal(t, uint32(0x590000), p.keys[input.KeyArrowUp])
}

func TestWaitingBannerWashesWholeGrid(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeBoth, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{redrawAt(0, 0, protocol.StatePlaying, 0x00FF00)})
	r.SetBanner(BannerWaiting)

	for key := 0; key < input.KeyCount; key++ {
		assert.Equal(t, uint32(colorWashWaiting), p.keys[key], "key %d", key)
	}

	// clearing the banner restores clip truth
	r.SetBanner(BannerNone)
	assert.Equal(t, uint32(0x00FF00), p.keys[input.SlotToKey(0, 0)])
}

func TestOfflineFreezesContentAndMarksOneKey(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{
		redrawAt(2, 1, protocol.StatePlaying, 0x00FF00),
		redrawAt(0, 0, protocol.StatePlaying, 0x0000FF),
	})
	r.SetBanner(BannerOffline)

	// last known state stays on screen, only the badge key changes
	assert.Equal(t, uint32(0x00FF00), p.keys[input.SlotToKey(2, 1)])
	assert.Equal(t, uint32(colorOffline), p.keys[offlineKey])

	// redraws under the badge are deferred until the peer is back
	r.Apply([]cellcache.Redraw{redrawAt(0, 0, protocol.StatePlaying, 0x00FFFF)})
	assert.Equal(t, uint32(colorOffline), p.keys[offlineKey])

	r.SetBanner(BannerNone)
	assert.Equal(t, uint32(0x00FFFF), p.keys[offlineKey])
	assert.Equal(t, uint32(0x00FF00), p.keys[input.SlotToKey(2, 1)])
}

func TestIdentifyFlashesAndRefreshRestores(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{redrawAt(2, 1, protocol.StatePlaying, 0x00FF00)})
	r.Identify()
	for key := 0; key < input.KeyCount; key++ {
		assert.Equal(t, uint32(colorFlash), p.keys[key], "key %d", key)
	}

	r.Refresh()
	assert.Equal(t, uint32(0x00FF00), p.keys[input.SlotToKey(2, 1)])
	assert.Equal(t, uint32(0), p.keys[input.SlotToKey(5, 3)])
}

func TestBrightnessScalesAndBlanksAtZero(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{redrawAt(0, 0, protocol.StatePlaying, 0x0000FF)})
	r.SetBrightness(5)
	assert.Equal(t, uint32(0x00007F), p.keys[input.SlotToKey(0, 0)])

	r.SetBrightness(0)
	assert.Equal(t, uint32(0), p.keys[input.SlotToKey(0, 0)])
}

func TestOverlayControlsIgnoreGridDimming(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeBoth, 2, zap.NewNop())

	r.SetRevealed(true)
	assert.Equal(t, uint32(colorOverlay), p.keys[input.KeyArrowUp])
	assert.Equal(t, brightnessColor(2), p.keys[input.KeyBrightness])

	// cycling brightness updates the indicator key
	r.SetBrightness(7)
	assert.Equal(t, brightnessColor(7), p.keys[input.KeyBrightness])
}

func TestBlankClearsHardware(t *testing.T) {
	p := newFakePanel()
	r := NewRenderer(p, session.ModeNone, 10, zap.NewNop())

	r.Apply([]cellcache.Redraw{redrawAt(0, 0, protocol.StatePlaying, 0x00FF00)})
	r.Blank()
	require.Equal(t, 1, p.cleared)
	assert.Empty(t, p.keys)
}
