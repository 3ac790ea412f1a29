package input

import (
	"time"

	"github.com/KevinKickass/GridDeck/internal/protocol"
	"github.com/KevinKickass/GridDeck/internal/session"
)

// Layer identifies which binding set is active on the key grid
type Layer int

const (
	LayerBase Layer = iota
	LayerReveal
)

// CommandType classifies the semantic actions an interpreter emits
type CommandType string

const (
	CmdTriggerClip     CommandType = "trigger_clip"
	CmdScroll          CommandType = "scroll"
	CmdBrightnessCycle CommandType = "brightness_cycle"
	CmdBrightnessReset CommandType = "brightness_reset"
	CmdRevealChanged   CommandType = "reveal_changed"
)

// Command is one semantic action derived from raw key events
type Command struct {
	Type      CommandType
	Col       int
	Row       int
	Direction protocol.Direction
	Revealed  bool
}

// Event is a raw key transition from the hardware
type Event struct {
	Key     int
	Pressed bool
	At      time.Time
}

type binding struct {
	cmd CommandType
	dir protocol.Direction
}

// Interpreter turns raw key events into semantic commands. It tracks the
// active layer, the scroll-mode specific binding table and the
// short/long press state of the brightness control. Not safe for
// concurrent use, each device engine owns exactly one.
type Interpreter struct {
	mode      session.ScrollMode
	layer     Layer
	bindings  map[Layer]map[int]binding
	longPress time.Duration

	brightnessHeld  bool
	brightnessAt    time.Time
	brightnessFired bool
}

// New builds an interpreter for the given scroll mode. longPress is the
// hold duration after which the brightness control resets instead of
// cycling.
func New(mode session.ScrollMode, longPress time.Duration) *Interpreter {
	i := &Interpreter{
		mode:      mode,
		layer:     LayerBase,
		longPress: longPress,
	}
	i.bindings = buildBindings(mode)
	return i
}

// buildBindings assembles the (layer, key) -> command table for a scroll
// mode. Keys absent from the table fall through to clip triggering.
func buildBindings(mode session.ScrollMode) map[Layer]map[int]binding {
	base := map[int]binding{}
	reveal := map[int]binding{}

	switch mode {
	case session.ModeVertical:
		// no reveal layer, two dedicated scroll keys
		base[KeyVerticalUp] = binding{cmd: CmdScroll, dir: protocol.DirUp}
		base[KeyVerticalDown] = binding{cmd: CmdScroll, dir: protocol.DirDown}
	case session.ModeBoth, session.ModeBothReset:
		left := binding{cmd: CmdScroll, dir: protocol.DirLeft}
		if mode == session.ModeBothReset {
			left = binding{cmd: CmdScroll, dir: protocol.DirReset}
		}
		reveal[KeyArrowUp] = binding{cmd: CmdScroll, dir: protocol.DirUp}
		reveal[KeyArrowDown] = binding{cmd: CmdScroll, dir: protocol.DirDown}
		reveal[KeyArrowLeft] = left
		reveal[KeyArrowRight] = binding{cmd: CmdScroll, dir: protocol.DirRight}
	}
	return map[Layer]map[int]binding{
		LayerBase:   base,
		LayerReveal: reveal,
	}
}

// Layer returns the currently active binding layer
func (i *Interpreter) Layer() Layer {
	return i.layer
}

// Handle processes one key transition and returns the commands it
// produced, in order.
func (i *Interpreter) Handle(ev Event) []Command {
	if i.hasRevealLayer() {
		switch ev.Key {
		case KeyBurger:
			return i.handleBurger(ev)
		case KeyBrightness:
			return i.handleBrightness(ev)
		}
	}

	if !ev.Pressed {
		return nil
	}
	if b, ok := i.bindings[i.layer][ev.Key]; ok {
		return []Command{{Type: b.cmd, Direction: b.dir}}
	}
	if ev.Key < 0 || ev.Key >= KeyCount {
		return nil
	}
	col, row := KeyToSlot(ev.Key)
	return []Command{{Type: CmdTriggerClip, Col: col, Row: row}}
}

// Tick fires deferred actions, currently the brightness long press once
// its hold crosses the threshold. Call it from the engine loop with the
// current time.
func (i *Interpreter) Tick(now time.Time) []Command {
	if !i.brightnessHeld || i.brightnessFired {
		return nil
	}
	if now.Sub(i.brightnessAt) < i.longPress {
		return nil
	}
	i.brightnessFired = true
	return []Command{{Type: CmdBrightnessReset}}
}

// NextDeadline reports when Tick next needs to run, or zero time if no
// deferred action is pending.
func (i *Interpreter) NextDeadline() time.Time {
	if !i.brightnessHeld || i.brightnessFired {
		return time.Time{}
	}
	return i.brightnessAt.Add(i.longPress)
}

func (i *Interpreter) handleBurger(ev Event) []Command {
	if ev.Pressed {
		i.layer = LayerReveal
		return []Command{{Type: CmdRevealChanged, Revealed: true}}
	}
	i.layer = LayerBase
	// releasing the burger also abandons a pending brightness hold
	i.brightnessHeld = false
	return []Command{{Type: CmdRevealChanged, Revealed: false}}
}

func (i *Interpreter) handleBrightness(ev Event) []Command {
	if i.layer != LayerReveal {
		// dead key outside the reveal overlay
		return nil
	}
	if ev.Pressed {
		i.brightnessHeld = true
		i.brightnessFired = false
		i.brightnessAt = ev.At
		return nil
	}
	if !i.brightnessHeld {
		return nil
	}
	i.brightnessHeld = false
	if i.brightnessFired {
		// long press already handled by Tick
		return nil
	}
	if ev.At.Sub(i.brightnessAt) >= i.longPress {
		i.brightnessFired = true
		return []Command{{Type: CmdBrightnessReset}}
	}
	return []Command{{Type: CmdBrightnessCycle}}
}

func (i *Interpreter) hasRevealLayer() bool {
	return i.mode == session.ModeBoth || i.mode == session.ModeBothReset
}

// CycleBrightness advances a brightness level by one step, wrapping
// after the maximum.
func CycleBrightness(level int) int {
	return (level + 1) % 11
}
