package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Per-device state changes
	MessageTypePeerState  MessageType = "peer_state"
	MessageTypeBrightness MessageType = "brightness"
	MessageTypeBanner     MessageType = "banner"

	// Snapshot sent to a client right after connecting
	MessageTypeDeviceList MessageType = "device_list"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
