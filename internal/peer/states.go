package peer

import (
	"time"

	"github.com/google/uuid"

	"github.com/KevinKickass/GridDeck/internal/protocol"
)

type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Status is the externally visible snapshot of one peer pairing
type Status struct {
	DisplayOrder int                 `json:"display_order"`
	State        State               `json:"state"`
	SessionID    string              `json:"session_id,omitempty"`
	LastSeen     time.Time           `json:"last_seen,omitempty"`
	Config       protocol.ConfigData `json:"config"`
}

// peerSession retains state across disconnects so a reconnect resumes
// rather than resets
type peerSession struct {
	displayOrder int
	state        State
	sessionID    uuid.UUID
	lastSeen     time.Time
	config       protocol.ConfigData
}
