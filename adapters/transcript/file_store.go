package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var _ repositories.TranscriptStore = (*FileStore)(nil)

// FileStore keeps the transcript as a plain text document on disk
type FileStore struct {
	path   string
	now    func() time.Time
	logger *zap.Logger

	mu sync.Mutex
}

// NewFileStore creates a file-backed transcript store. The file is created on Initialize.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("transcript path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve transcript path: %w", err)
	}
	return &FileStore{path: abs, now: time.Now, logger: logger}, nil
}

func (f *FileStore) header() string {
	return fmt.Sprintf("# Transcript\n\nCreated: %s\n\n", f.now().Format(time.RFC3339))
}

// Initialize creates the transcript file if needed and marks the start of a session
func (f *FileStore) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	info, err := os.Stat(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0):
		if err := atomic.WriteFile(f.path, strings.NewReader(f.header())); err != nil {
			return fmt.Errorf("failed to create transcript: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to stat transcript: %w", err)
	}

	f.logger.Info("Transcript initialized", zap.String("path", f.path))
	return f.appendLine(entities.TranscriptEntry{Timestamp: f.now(), Text: "Session started", System: true}.Line())
}

// Append writes one transcribed entry
func (f *FileStore) Append(ctx context.Context, entry entities.TranscriptEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLine(entry.Line())
}

// AppendSystemMessage writes a notice such as a pause or resume marker
func (f *FileStore) AppendSystemMessage(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLine(entities.TranscriptEntry{Timestamp: f.now(), Text: message, System: true}.Line())
}

// Content returns the whole transcript; a missing file reads as empty
func (f *FileStore) Content(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}

// Clear atomically replaces the transcript with a fresh header
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := atomic.WriteFile(f.path, strings.NewReader(f.header())); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	f.logger.Info("Transcript cleared", zap.String("path", f.path))
	return nil
}

// Delete removes the transcript file
func (f *FileStore) Delete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	f.logger.Info("Transcript deleted", zap.String("path", f.path))
	return nil
}

// Path returns the absolute transcript path
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) appendLine(line string) error {
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
