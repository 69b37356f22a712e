package entities

import (
	"fmt"
	"time"
)

// TranscriptEntry is one transcribed chunk of speech
type TranscriptEntry struct {
	SessionID  string    `json:"session_id" bson:"session_id"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Text       string    `json:"text" bson:"text"`
	Language   string    `json:"language,omitempty" bson:"language,omitempty"`
	Confidence *float64  `json:"confidence,omitempty" bson:"confidence,omitempty"`
	System     bool      `json:"system,omitempty" bson:"system,omitempty"`
}

// Line renders the entry the way it appears in a transcript document
func (e TranscriptEntry) Line() string {
	stamp := e.Timestamp.Format("15:04:05")
	if e.System {
		return fmt.Sprintf("[%s] --- %s ---", stamp, e.Text)
	}
	return fmt.Sprintf("[%s] %s", stamp, e.Text)
}
