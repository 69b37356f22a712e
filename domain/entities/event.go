package entities

import "time"

// EventType identifies a session lifecycle transition
type EventType string

const (
	EventStarted         EventType = "started"
	EventPaused          EventType = "paused"
	EventResumed         EventType = "resumed"
	EventStopped         EventType = "stopped"
	EventSilenceDetected EventType = "silence_detected"
	EventAudioDetected   EventType = "audio_detected"
	EventWarning         EventType = "warning"
	EventError           EventType = "error"
)

// StopStats summarizes a session when it stops
type StopStats struct {
	ChunksProcessed int     `json:"chunksProcessed"`
	DurationSeconds float64 `json:"durationSeconds"`
	Errors          int     `json:"errors"`
}

// StatusChangeEvent is emitted on every session transition.
// Only the fields relevant to Type are set.
type StatusChangeEvent struct {
	Type              EventType   `json:"type"`
	SessionID         string      `json:"sessionId"`
	Timestamp         time.Time   `json:"timestamp"`
	Reason            PauseReason `json:"reason,omitempty"`
	PreviousReason    PauseReason `json:"previousReason,omitempty"`
	Message           string      `json:"message,omitempty"`
	ConsecutiveChunks int         `json:"consecutiveChunks,omitempty"`
	ElapsedMinutes    int         `json:"elapsedMinutes,omitempty"`
	Stats             *StopStats  `json:"stats,omitempty"`
}
