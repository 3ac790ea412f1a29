package peer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/GridDeck/internal/protocol"
)

// Transition describes a state change reported to the owner
type Transition struct {
	DisplayOrder int
	From, To     State
	// FirstContact is true only for unknown -> online; the render
	// adapter runs its identify pattern exactly once on it
	FirstContact bool
}

// Registry tracks online/offline state per display order. Any inbound
// message counts as a heartbeat since the protocol has no dedicated
// heartbeat beyond the announce pair. Loss of a peer is a transition,
// never a process failure.
type Registry struct {
	mu      sync.RWMutex
	peers   map[int]*peerSession
	timeout time.Duration
	logger  *zap.Logger
}

func NewRegistry(timeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		peers:   make(map[int]*peerSession),
		timeout: timeout,
		logger:  logger,
	}
}

// Touch records inbound traffic from a peer and returns the resulting
// transition, if any. A peer coming back after an offline period keeps
// its session identity; only first contact mints one.
func (r *Registry) Touch(displayOrder int, now time.Time) (Transition, bool) {
	r.mu.Lock()

	p, exists := r.peers[displayOrder]
	if !exists {
		p = &peerSession{displayOrder: displayOrder, state: StateUnknown}
		r.peers[displayOrder] = p
	}
	p.lastSeen = now

	from := p.state
	if from == StateOnline {
		r.mu.Unlock()
		return Transition{}, false
	}

	p.state = StateOnline
	first := from == StateUnknown
	if first {
		p.sessionID = uuid.New()
	}
	sessionID := p.sessionID
	r.mu.Unlock()

	r.logger.Info("Peer online",
		zap.Int("display_order", displayOrder),
		zap.String("session_id", sessionID.String()),
		zap.Bool("first_contact", first))

	return Transition{DisplayOrder: displayOrder, From: from, To: StateOnline, FirstContact: first}, true
}

// Tick marks peers offline when no traffic has been seen within the
// liveness window. Returns all transitions so the owner can freeze
// rendering and clear caches.
func (r *Registry) Tick(now time.Time) []Transition {
	r.mu.Lock()
	var transitions []Transition
	for _, p := range r.peers {
		if p.state != StateOnline {
			continue
		}
		if now.Sub(p.lastSeen) <= r.timeout {
			continue
		}
		p.state = StateOffline
		transitions = append(transitions, Transition{
			DisplayOrder: p.displayOrder,
			From:         StateOnline,
			To:           StateOffline,
		})
	}
	r.mu.Unlock()

	for _, t := range transitions {
		r.logger.Warn("Peer offline", zap.Int("display_order", t.DisplayOrder))
	}
	return transitions
}

// SetConfig retains the most recent configuration exchanged with a peer
func (r *Registry) SetConfig(displayOrder int, cfg protocol.ConfigData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.peers[displayOrder]
	if !exists {
		p = &peerSession{displayOrder: displayOrder, state: StateUnknown}
		r.peers[displayOrder] = p
	}
	p.config = cfg
}

// Online reports whether a peer is currently online
func (r *Registry) Online(displayOrder int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.peers[displayOrder]
	return exists && p.state == StateOnline
}

// Status returns the snapshot for one display order
func (r *Registry) Status(displayOrder int) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.peers[displayOrder]
	if !exists {
		return Status{DisplayOrder: displayOrder, State: StateUnknown}, false
	}
	return statusOf(p), true
}

// Snapshot returns all known peers, for the observability API
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, statusOf(p))
	}
	return out
}

func statusOf(p *peerSession) Status {
	s := Status{
		DisplayOrder: p.displayOrder,
		State:        p.state,
		LastSeen:     p.lastSeen,
		Config:       p.config,
	}
	if p.sessionID != uuid.Nil {
		s.SessionID = p.sessionID.String()
	}
	return s
}
