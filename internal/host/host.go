package host

import "github.com/KevinKickass/GridDeck/internal/protocol"

// Clip is a point-in-time snapshot of one slot in the host's grid
type Clip struct {
	Key      string
	Name     string
	Color    uint32
	State    protocol.PlayState
	Progress float64
}

// EventType classifies asynchronous host notifications
type EventType string

const (
	EventTrackStopped     EventType = "track_stopped"
	EventStructureChanged EventType = "structure_changed"
	EventDocumentClosing  EventType = "document_closing"
)

// Event is an asynchronous notification from the host
type Event struct {
	Type       EventType
	Track      int // absolute track index, track_stopped only
	WasPlaying bool
}

// Host is the live-audio application surface the adapter reads and
// commands. Reads are cheap snapshots, the adapter polls them and
// diffs. Implementations must be safe for concurrent use.
type Host interface {
	// Structure returns the current grid dimensions
	Structure() (trackCount, sceneCount int)
	// ClipAt reads one slot by absolute coordinates, false when the
	// slot lies outside the grid
	ClipAt(track, scene int) (Clip, bool)
	// TriggerClip launches the clip at absolute coordinates
	TriggerClip(track, scene int) error
	// Events streams asynchronous host notifications
	Events() <-chan Event
}
