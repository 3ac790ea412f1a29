package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("bad message payload")
)

type envelope struct {
	Type         MessageType     `json:"type"`
	DisplayOrder int             `json:"display_order"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Encode serializes a message into a datagram payload
func Encode(msg Message) ([]byte, error) {
	var raw json.RawMessage
	if msg.Data != nil {
		data, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", msg.Type, err)
		}
		raw = data
	}
	return json.Marshal(envelope{
		Type:         msg.Type,
		DisplayOrder: msg.DisplayOrder,
		Data:         raw,
	})
}

// Decode parses a datagram payload into a typed message. Unknown types
// and malformed payloads return an error so the caller can drop the
// datagram with a diagnostic instead of crashing on bad input.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if env.DisplayOrder < 0 {
		return Message{}, fmt.Errorf("%w: negative display_order %d", ErrBadPayload, env.DisplayOrder)
	}

	msg := Message{Type: env.Type, DisplayOrder: env.DisplayOrder}

	switch env.Type {
	case TypeAnnounceAdapter, TypeAnnounceHost, TypeConfigRequest,
		TypeDocumentClosing, TypeRefresh:
		// bare messages, payload ignored

	case TypeConfig:
		var d ConfigData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Message{}, err
		}
		msg.Data = d

	case TypeClipInfo:
		var d ClipInfoData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Message{}, err
		}
		if d.Track < 0 || d.Scene < 0 {
			return Message{}, fmt.Errorf("%w: negative slot (%d,%d)", ErrBadPayload, d.Track, d.Scene)
		}
		msg.Data = d

	case TypeTrackStopped:
		var d TrackStoppedData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Message{}, err
		}
		if d.TrackIndex < 0 {
			return Message{}, fmt.Errorf("%w: negative track_index %d", ErrBadPayload, d.TrackIndex)
		}
		msg.Data = d

	case TypeStructuralMismatch:
		var d StructuralMismatchData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Message{}, err
		}
		msg.Data = d

	case TypeTriggerClip:
		var d TriggerClipData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Message{}, err
		}
		if d.TrackOffset < 0 || d.SceneOffset < 0 {
			return Message{}, fmt.Errorf("%w: negative offsets (%d,%d)", ErrBadPayload, d.TrackOffset, d.SceneOffset)
		}
		msg.Data = d

	case TypeScroll:
		var d ScrollData
		if err := unmarshalData(env.Data, &d); err != nil {
			return Message{}, err
		}
		switch d.Direction {
		case DirUp, DirDown, DirLeft, DirRight, DirReset:
		default:
			return Message{}, fmt.Errorf("%w: direction %q", ErrBadPayload, d.Direction)
		}
		msg.Data = d

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return msg, nil
}

func unmarshalData(raw json.RawMessage, out any) error {
	if raw == nil {
		return fmt.Errorf("%w: missing data", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
