package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/scribe/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	// client to server
	MessageTypeStart  MessageType = "start"
	MessageTypePause  MessageType = "pause"
	MessageTypeResume MessageType = "resume"
	MessageTypeStop   MessageType = "stop"
	MessageTypeStatus MessageType = "status"
	MessageTypePing   MessageType = "ping"

	// server to client
	MessageTypeEvent    MessageType = "event"
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeAck      MessageType = "ack"
	MessageTypePong     MessageType = "pong"
	MessageTypeError    MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// ControlMessage asks the server to act on the session
type ControlMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// EventMessage carries a session status change
type EventMessage struct {
	BaseMessage
	Event entities.StatusChangeEvent `json:"event"`
}

// SnapshotMessage carries the current session status
type SnapshotMessage struct {
	BaseMessage
	Status entities.Snapshot `json:"status"`
}

// AckMessage confirms a control message was applied
type AckMessage struct {
	BaseMessage
	Action MessageType `json:"action"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// IsControl reports whether the type changes session state
func (t MessageType) IsControl() bool {
	switch t {
	case MessageTypeStart, MessageTypePause, MessageTypeResume, MessageTypeStop:
		return true
	}
	return false
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming text message and returns its typed form
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	if base.Timestamp == "" {
		base.Timestamp = time.Now().Format(time.RFC3339)
	}

	switch base.Type {
	case MessageTypeStart, MessageTypePause, MessageTypeResume, MessageTypeStop, MessageTypeStatus:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		msg.Timestamp = base.Timestamp
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateEventMessage wraps a status change for broadcast
func CreateEventMessage(event entities.StatusChangeEvent) *EventMessage {
	return &EventMessage{
		BaseMessage: newBase(MessageTypeEvent),
		Event:       event,
	}
}

// CreateSnapshotMessage wraps a status snapshot
func CreateSnapshotMessage(status entities.Snapshot) *SnapshotMessage {
	return &SnapshotMessage{
		BaseMessage: newBase(MessageTypeSnapshot),
		Status:      status,
	}
}

// CreateAckMessage confirms the given control action
func CreateAckMessage(action MessageType, messageID string) *AckMessage {
	base := newBase(MessageTypeAck)
	base.MessageID = messageID
	return &AckMessage{
		BaseMessage: base,
		Action:      action,
	}
}
