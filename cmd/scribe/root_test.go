package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/scribe/internal/auth"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SCRIBE_STT_PROVIDER", "mock")
	t.Setenv("SCRIBE_TRANSCRIPT_STORE", "file")
	t.Setenv("SCRIBE_TRANSCRIPT_PATH", filepath.Join(t.TempDir(), "transcript.md"))
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "mcp", "tail", "stream"})

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestServeRequiresJWTSecret(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JWT_SECRET", "")

	err := execute(t, "serve")
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestMCPRequiresFFmpegSource(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SCRIBE_AUDIO_SOURCE", "websocket")

	err := execute(t, "mcp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg")
}

func TestInvalidConfigFails(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SCRIBE_CHUNK_SECONDS", "0")

	err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_seconds")
}

func TestNewAppWiresWebSocketSource(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SCRIBE_AUDIO_SOURCE", "websocket")

	flags := &rootFlags{}
	cfg, logger, err := flags.load()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.shutdown(context.Background()) })

	assert.False(t, a.service.Snapshot().IsRunning)
	assert.Equal(t, cfg.Transcript.Path, a.service.TranscriptPath())
	assert.False(t, a.hub.DeviceConnected())
}
