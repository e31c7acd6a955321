package ws

import (
	"encoding/json"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeStdin   MessageType = "stdin"
	MessageTypeResize  MessageType = "resize"
	MessageTypeKill    MessageType = "kill"
	MessageTypeHistory MessageType = "history"
	MessageTypePing    MessageType = "ping"

	// Server -> Client message types besides bridge events
	MessageTypePong  MessageType = "pong"
	MessageTypeError MessageType = "error"
)

// ClientMessage is a message received from the UI. Data is base64 in JSON,
// like event output, so input bytes survive unchanged.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      []byte      `json:"data,omitempty"`
	Cols      uint16      `json:"cols,omitempty"`
	Rows      uint16      `json:"rows,omitempty"`
}

// ServerMessage is a reply to a client message.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      []byte      `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ParseClientMessage decodes a client frame.
func ParseClientMessage(frame []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
