package session

import (
	"fmt"

	"github.com/KevinKickass/GridDeck/internal/config"
	"github.com/KevinKickass/GridDeck/internal/protocol"
)

// ScrollMode selects which navigation gestures the window accepts
type ScrollMode string

const (
	ModeNone      ScrollMode = ScrollMode(config.ScrollNone)
	ModeVertical  ScrollMode = ScrollMode(config.ScrollVertical)
	ModeBoth      ScrollMode = ScrollMode(config.ScrollBoth)
	ModeBothReset ScrollMode = ScrollMode(config.ScrollBothReset)
)

func ParseScrollMode(s string) (ScrollMode, error) {
	switch ScrollMode(s) {
	case ModeNone, ModeVertical, ModeBoth, ModeBothReset:
		return ScrollMode(s), nil
	}
	return "", fmt.Errorf("unknown scroll mode %q", s)
}

// Visible window geometry, fixed by the hardware layout
const (
	VisibleCols = 8
	VisibleRows = 4
)

// Event reports what a window operation changed. Changed offsets
// invalidate all cell state for the device and force a full refresh;
// a mismatch flip must be forwarded to the operator.
type Event struct {
	Changed         bool
	MismatchChanged bool
	Mismatch        bool
}

// Window is a device's scrollable rectangle into the host's
// track x scene grid. It is owned by a single adapter loop and is not
// safe for concurrent use.
type Window struct {
	trackOffset int
	sceneOffset int
	hSeed       int // configured h_offset, target of reset
	mode        ScrollMode

	// last structure the host reported
	trackCount int
	sceneCount int
	structured bool // false until the first ApplyStructure

	mismatch bool
}

func NewWindow(mode ScrollMode, hSeed int) *Window {
	return &Window{
		trackOffset: hSeed,
		hSeed:       hSeed,
		mode:        mode,
	}
}

func (w *Window) Offsets() (track, scene int) { return w.trackOffset, w.sceneOffset }
func (w *Window) Mismatch() bool              { return w.mismatch }
func (w *Window) Mode() ScrollMode            { return w.mode }
func (w *Window) Seed() int                   { return w.hSeed }

// SetSeed updates the configured horizontal seed. Only the first config
// exchange moves the window itself; later pushes must not yank a window
// the operator has scrolled away.
func (w *Window) SetSeed(hSeed int, moveWindow bool) Event {
	w.hSeed = hSeed
	if !moveWindow || w.trackOffset == hSeed {
		return Event{}
	}
	w.trackOffset = hSeed
	return w.changedEvent()
}

// Scroll applies one navigation step. In both-reset mode a left scroll
// is reinterpreted as "reset track offset to the configured seed"
// rather than a single step; the hardware gesture is the same.
func (w *Window) Scroll(dir protocol.Direction) Event {
	oldTrack, oldScene := w.trackOffset, w.sceneOffset

	switch dir {
	case protocol.DirUp:
		w.sceneOffset = max(0, w.sceneOffset-1)
	case protocol.DirDown:
		w.sceneOffset = min(w.maxSceneOffset(), w.sceneOffset+1)
	case protocol.DirLeft:
		if w.mode == ModeBothReset {
			w.trackOffset = w.hSeed
		} else {
			w.trackOffset = max(0, w.trackOffset-1)
		}
	case protocol.DirRight:
		w.trackOffset = min(w.maxTrackOffset(), w.trackOffset+1)
	case protocol.DirReset:
		w.trackOffset = w.hSeed
	}

	if w.trackOffset == oldTrack && w.sceneOffset == oldScene {
		// clamped no-op still re-evaluates mismatch: an explicit
		// gesture is the operator's way out of a mismatch state
		return w.refreshMismatch(Event{})
	}
	return w.refreshMismatch(w.changedEvent())
}

// Reset returns the window to its configured origin
func (w *Window) Reset() Event {
	if w.trackOffset == w.hSeed && w.sceneOffset == 0 {
		return w.refreshMismatch(Event{})
	}
	w.trackOffset = w.hSeed
	w.sceneOffset = 0
	return w.refreshMismatch(w.changedEvent())
}

// ApplyStructure records the host's current grid size. Offsets that
// keep at least one visible row and column are clamped into scroll
// range; offsets pointing entirely past the grid raise a structural
// mismatch instead of being silently corrected.
func (w *Window) ApplyStructure(trackCount, sceneCount int) Event {
	w.trackCount = trackCount
	w.sceneCount = sceneCount
	w.structured = true

	if w.offsetsUnreachable() {
		return w.refreshMismatch(Event{})
	}

	ev := Event{}
	if t := min(w.trackOffset, w.maxTrackOffset()); t != w.trackOffset {
		w.trackOffset = t
		ev = w.changedEvent()
	}
	if s := min(w.sceneOffset, w.maxSceneOffset()); s != w.sceneOffset {
		w.sceneOffset = s
		ev = w.changedEvent()
	}
	return w.refreshMismatch(ev)
}

// Contains reports whether an absolute cell falls inside the window
func (w *Window) Contains(track, scene int) bool {
	return track >= w.trackOffset && track < w.trackOffset+VisibleCols &&
		scene >= w.sceneOffset && scene < w.sceneOffset+VisibleRows
}

// ToLocal translates absolute coordinates into window-local slots
func (w *Window) ToLocal(track, scene int) (col, row int, ok bool) {
	if !w.Contains(track, scene) {
		return 0, 0, false
	}
	return track - w.trackOffset, scene - w.sceneOffset, true
}

// ToAbsolute translates window-local slots to absolute coordinates
func (w *Window) ToAbsolute(col, row int) (track, scene int) {
	return w.trackOffset + col, w.sceneOffset + row
}

func (w *Window) maxTrackOffset() int { return max(0, w.trackCount-VisibleCols) }
func (w *Window) maxSceneOffset() int { return max(0, w.sceneCount-VisibleRows) }

func (w *Window) offsetsUnreachable() bool {
	if !w.structured {
		return false
	}
	return w.trackOffset >= w.trackCount || w.sceneOffset >= w.sceneCount
}

func (w *Window) changedEvent() Event { return Event{Changed: true} }

func (w *Window) refreshMismatch(ev Event) Event {
	mismatch := w.offsetsUnreachable()
	if mismatch != w.mismatch {
		w.mismatch = mismatch
		ev.MismatchChanged = true
	}
	ev.Mismatch = w.mismatch
	return ev
}
