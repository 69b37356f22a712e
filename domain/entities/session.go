package entities

import (
	"time"

	"github.com/google/uuid"
)

// SilenceThreshold is the number of consecutive silent chunks that pauses a session.
const SilenceThreshold = 4

// InactivityTimeout is how long a session may run without any control interaction
// before it is force-paused.
const InactivityTimeout = 30 * time.Minute

// PauseReason explains why a session is paused
type PauseReason string

const (
	PauseReasonNone       PauseReason = ""
	PauseReasonManual     PauseReason = "manual"
	PauseReasonSilence    PauseReason = "silence"
	PauseReasonInactivity PauseReason = "inactivity"
)

// AutoResumes reports whether audible audio lifts a pause with this reason.
func (r PauseReason) AutoResumes() bool {
	return r == PauseReasonSilence
}

// SessionStatus is the mutable state of one transcription session
type SessionStatus struct {
	ID                      string      `json:"id"`
	IsRunning               bool        `json:"isRunning"`
	IsPaused                bool        `json:"isPaused"`
	PauseReason             PauseReason `json:"pauseReason,omitempty"`
	StartTime               *time.Time  `json:"startTime,omitempty"`
	LastInteractionTime     time.Time   `json:"lastInteractionTime"`
	LastTranscriptTime      *time.Time  `json:"lastTranscriptTime,omitempty"`
	ChunksProcessed         int         `json:"chunksProcessed"`
	ConsecutiveSilentChunks int         `json:"consecutiveSilentChunks"`
	SilentChunksSkipped     int         `json:"silentChunksSkipped"`
	Errors                  int         `json:"errors"`
	Warning                 string      `json:"warning,omitempty"`
}

// NewSessionStatus creates the status for a freshly started session
func NewSessionStatus(now time.Time) *SessionStatus {
	start := now
	return &SessionStatus{
		ID:                  uuid.New().String(),
		IsRunning:           true,
		StartTime:           &start,
		LastInteractionTime: now,
	}
}

// Pause moves the session into a paused state with the given reason
func (s *SessionStatus) Pause(reason PauseReason, warning string) {
	s.IsPaused = true
	s.PauseReason = reason
	s.Warning = warning
}

// Resume clears the pause and returns the reason that was in effect
func (s *SessionStatus) Resume() PauseReason {
	previous := s.PauseReason
	s.IsPaused = false
	s.PauseReason = PauseReasonNone
	s.Warning = ""
	s.ConsecutiveSilentChunks = 0
	return previous
}

// Touch records a control interaction
func (s *SessionStatus) Touch(now time.Time) {
	s.LastInteractionTime = now
}

// IdleFor returns the time elapsed since the last control interaction
func (s *SessionStatus) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastInteractionTime)
}

// Duration returns how long the session has been (or was) running
func (s *SessionStatus) Duration(now time.Time) time.Duration {
	if s.StartTime == nil {
		return 0
	}
	return now.Sub(*s.StartTime)
}

// Snapshot is a read-only copy of a session status enriched with derived costs
type Snapshot struct {
	SessionStatus
	ChunkSeconds  int     `json:"chunkSeconds"`
	EstimatedCost float64 `json:"estimatedCost"`
	CostSaved     float64 `json:"costSaved"`
}

// Snapshot copies the status and derives cost figures for the given chunk length
func (s *SessionStatus) Snapshot(chunkSeconds int) Snapshot {
	cp := *s
	if s.StartTime != nil {
		t := *s.StartTime
		cp.StartTime = &t
	}
	if s.LastTranscriptTime != nil {
		t := *s.LastTranscriptTime
		cp.LastTranscriptTime = &t
	}
	return Snapshot{
		SessionStatus: cp,
		ChunkSeconds:  chunkSeconds,
		EstimatedCost: EstimatedCost(s.ChunksProcessed, chunkSeconds),
		CostSaved:     CostSaved(s.SilentChunksSkipped, chunkSeconds),
	}
}
