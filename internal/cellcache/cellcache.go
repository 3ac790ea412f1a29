package cellcache

import (
	"sync"
	"time"

	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/session"
)

// Cell is the rendered content of one window-local grid slot
type Cell struct {
	Key      string             `json:"key"`
	Name     string             `json:"name"`
	Color    uint32             `json:"color"`
	State    protocol.PlayState `json:"state"`
	Progress float64            `json:"progress"`
}

// FromClipInfo converts a level update into cache form. Progress is
// clamped, not rejected, to tolerate floating-point overshoot from the
// host.
func FromClipInfo(d protocol.ClipInfoData) Cell {
	p := d.Progress
	if p != p || p < 0 { // NaN or negative
		p = 0
	} else if p > 1 {
		p = 1
	}
	return Cell{Key: d.Key, Name: d.Name, Color: d.Color, State: d.State, Progress: p}
}

// Slot is a window-local grid coordinate
type Slot struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// FlashKind distinguishes the short press feedback from the
// track-stopped overlay; the render adapter colors them differently.
type FlashKind int

const (
	FlashNone FlashKind = iota
	FlashPress
	FlashStop
)

// Redraw is one paint instruction for the render adapter
type Redraw struct {
	Slot  Slot
	Cell  Cell
	Known bool      // false: nothing cached, paint idle
	Flash FlashKind // overlay instead of true content
}

type flashState struct {
	deadline time.Time
	kind     FlashKind
}

// Cache holds the last-rendered state of every visible cell for one
// device and computes minimal diffs: redraw volume is proportional to
// state change, not to grid size.
type Cache struct {
	mu      sync.Mutex
	cells   map[Slot]Cell
	flashes map[Slot]flashState
}

func New() *Cache {
	return &Cache{
		cells:   make(map[Slot]Cell),
		flashes: make(map[Slot]flashState),
	}
}

// Ingest reconciles one level update against the cache. It returns a
// redraw instruction only when the content actually changed; repeated
// identical updates produce exactly one redraw. Updates for slots
// outside the grid are dropped.
func (c *Cache) Ingest(slot Slot, cell Cell, now time.Time) (Redraw, bool) {
	if slot.Col < 0 || slot.Col >= session.VisibleCols ||
		slot.Row < 0 || slot.Row >= session.VisibleRows {
		return Redraw{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, known := c.cells[slot]; known && cached == cell {
		return Redraw{}, false
	}
	c.cells[slot] = cell

	// while a flash overlay covers the slot the cache still learns the
	// truth, but the repaint waits for the flash to expire
	if f, flashing := c.flashes[slot]; flashing && now.Before(f.deadline) {
		return Redraw{}, false
	}

	return Redraw{Slot: slot, Cell: cell, Known: true}, true
}

// FlashSlot overlays a short flash on one slot, used as immediate local
// feedback for a button press. Reverts via ExpireFlashes like every
// other flash.
func (c *Cache) FlashSlot(slot Slot, now time.Time, duration time.Duration) (Redraw, bool) {
	if slot.Col < 0 || slot.Col >= session.VisibleCols ||
		slot.Row < 0 || slot.Row >= session.VisibleRows {
		return Redraw{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.flashes[slot] = flashState{deadline: now.Add(duration), kind: FlashPress}
	cell, known := c.cells[slot]
	return Redraw{Slot: slot, Cell: cell, Known: known, Flash: FlashPress}, true
}

// IngestTrackStopped overlays a time-bounded stop flash on the whole
// column. The flash reverts on its own via ExpireFlashes; no follow-up
// message is required to clear it.
func (c *Cache) IngestTrackStopped(localTrack int, now time.Time, duration time.Duration) []Redraw {
	if localTrack < 0 || localTrack >= session.VisibleCols {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	redraws := make([]Redraw, 0, session.VisibleRows)
	deadline := now.Add(duration)
	for row := 0; row < session.VisibleRows; row++ {
		slot := Slot{Col: localTrack, Row: row}
		c.flashes[slot] = flashState{deadline: deadline, kind: FlashStop}
		cell, known := c.cells[slot]
		redraws = append(redraws, Redraw{Slot: slot, Cell: cell, Known: known, Flash: FlashStop})
	}
	return redraws
}

// ExpireFlashes reverts every flash whose deadline has passed to the
// cell's last known true state
func (c *Cache) ExpireFlashes(now time.Time) []Redraw {
	c.mu.Lock()
	defer c.mu.Unlock()

	var redraws []Redraw
	for slot, f := range c.flashes {
		if now.Before(f.deadline) {
			continue
		}
		delete(c.flashes, slot)
		cell, known := c.cells[slot]
		redraws = append(redraws, Redraw{Slot: slot, Cell: cell, Known: known})
	}
	return redraws
}

// NextFlashDeadline returns the earliest pending flash expiry
func (c *Cache) NextFlashDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var earliest time.Time
	found := false
	for _, f := range c.flashes {
		if !found || f.deadline.Before(earliest) {
			earliest = f.deadline
			found = true
		}
	}
	return earliest, found
}

// Invalidate clears the whole cache so the next refresh response
// repaints everything
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cells = make(map[Slot]Cell)
	c.flashes = make(map[Slot]flashState)
}

// Snapshot copies the cached cells, for the observability API
func (c *Cache) Snapshot() map[Slot]Cell {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Slot]Cell, len(c.cells))
	for slot, cell := range c.cells {
		out[slot] = cell
	}
	return out
}

// Len returns the number of cached cells
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cells)
}
