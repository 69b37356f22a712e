package domain

import "errors"

// Caller-facing session errors. None of them alter session state.
var (
	ErrAlreadyRunning     = errors.New("transcription is already running")
	ErrNotRunning         = errors.New("transcription is not running")
	ErrAlreadyPaused      = errors.New("transcription is already paused")
	ErrNotPaused          = errors.New("transcription is not paused")
	ErrInvalidCredentials = errors.New("speech-to-text credentials are invalid")
	ErrAudioSourceFailed  = errors.New("audio source failed")
)

// ErrTranscriptionFailed marks a failed speech-to-text call. It is counted, never returned to callers.
var ErrTranscriptionFailed = errors.New("transcription failed")
