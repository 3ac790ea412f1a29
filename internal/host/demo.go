package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/GridDeck/internal/protocol"
)

var demoColors = []uint32{
	0xE5342C, 0xF08B35, 0xF5D93C, 0x7BC84A,
	0x3BB3E0, 0x4A6BD8, 0x9450C9, 0xD355A8,
}

// Demo is an in-memory host with a simulated playback engine. It backs
// the adapter's standalone demo mode and the test suites. One clip per
// track may play at a time, triggering a clip stops the previous one
// after a short launch delay, the way quantized launching behaves.
type Demo struct {
	mu      sync.Mutex
	tracks  int
	scenes  int
	clips   map[[2]int]*Clip
	playing map[int]int // track -> playing scene
	pending map[int]int // track -> triggered scene
	events  chan Event
}

// NewDemo builds a demo grid. Every second slot holds a clip so empty
// cells show up in renders too.
func NewDemo(tracks, scenes int) *Demo {
	d := &Demo{
		tracks:  tracks,
		scenes:  scenes,
		clips:   make(map[[2]int]*Clip),
		playing: make(map[int]int),
		pending: make(map[int]int),
		events:  make(chan Event, 16),
	}
	for t := 0; t < tracks; t++ {
		for s := 0; s < scenes; s++ {
			if (t+s)%2 != 0 {
				continue
			}
			d.clips[[2]int{t, s}] = &Clip{
				Key:   fmt.Sprintf("demo-%d-%d", t, s),
				Name:  fmt.Sprintf("Clip %d.%d", t+1, s+1),
				Color: demoColors[(t+s)%len(demoColors)],
				State: protocol.StateIdle,
			}
		}
	}
	return d
}

func (d *Demo) Structure() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracks, d.scenes
}

func (d *Demo) ClipAt(track, scene int) (Clip, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if track < 0 || track >= d.tracks || scene < 0 || scene >= d.scenes {
		return Clip{}, false
	}
	c, ok := d.clips[[2]int{track, scene}]
	if !ok {
		return Clip{State: protocol.StateEmpty}, true
	}
	return *c, true
}

func (d *Demo) TriggerClip(track, scene int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if track < 0 || track >= d.tracks || scene < 0 || scene >= d.scenes {
		return fmt.Errorf("slot (%d,%d) outside grid", track, scene)
	}
	c, ok := d.clips[[2]int{track, scene}]
	if !ok {
		return nil // empty slot, nothing to launch
	}
	c.State = protocol.StateTriggered
	c.Progress = 0
	d.pending[track] = scene
	return nil
}

func (d *Demo) Events() <-chan Event {
	return d.events
}

// Resize changes the grid dimensions and emits a structure event
func (d *Demo) Resize(tracks, scenes int) {
	d.mu.Lock()
	d.tracks = tracks
	d.scenes = scenes
	d.mu.Unlock()
	d.emit(Event{Type: EventStructureChanged})
}

// StopTrack halts playback on one track and emits the stop event
func (d *Demo) StopTrack(track int) {
	d.mu.Lock()
	scene, wasPlaying := d.playing[track]
	if wasPlaying {
		if c, ok := d.clips[[2]int{track, scene}]; ok {
			c.State = protocol.StateIdle
			c.Progress = 0
		}
		delete(d.playing, track)
	}
	delete(d.pending, track)
	d.mu.Unlock()
	d.emit(Event{Type: EventTrackStopped, Track: track, WasPlaying: wasPlaying})
}

// CloseDocument emits the closing event, after which readers should
// treat the session as gone.
func (d *Demo) CloseDocument() {
	d.emit(Event{Type: EventDocumentClosing})
}

// Run advances the playback simulation until the context ends
func (d *Demo) Run(ctx context.Context, step time.Duration) {
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Advance()
		}
	}
}

// Advance moves the simulation one step: pending launches start, the
// previously playing clip on that track goes back to idle, playing
// clips loop their progress.
func (d *Demo) Advance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for track, scene := range d.pending {
		if prev, ok := d.playing[track]; ok && prev != scene {
			if c, ok := d.clips[[2]int{track, prev}]; ok {
				c.State = protocol.StateIdle
				c.Progress = 0
			}
		}
		if c, ok := d.clips[[2]int{track, scene}]; ok {
			c.State = protocol.StatePlaying
		}
		d.playing[track] = scene
		delete(d.pending, track)
	}
	for track, scene := range d.playing {
		c, ok := d.clips[[2]int{track, scene}]
		if !ok {
			continue
		}
		c.Progress += 0.0625
		if c.Progress > 1 {
			c.Progress = 0
		}
	}
}

func (d *Demo) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
	}
}
