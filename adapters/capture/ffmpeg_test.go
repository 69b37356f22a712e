package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type collector struct {
	mu   sync.Mutex
	data []byte
	errs []error
}

func (c *collector) onData(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, b...)
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) snapshot() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.data), len(c.errs)
}

func TestFFmpegSourceStreamsAndStops(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nexec sleep 5\n")
	source := NewFFmpegSource(FFmpegConfig{Command: script}, zaptest.NewLogger(t))

	var c collector
	if err := source.Start(context.Background(), c.onData, c.onError); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := c.snapshot()
		if data == "hello" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected hello, got %q", data)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := source.Start(context.Background(), c.onData, c.onError); err == nil {
		t.Fatalf("expected second start to fail")
	}

	if err := source.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if _, errs := c.snapshot(); errs != 0 {
		t.Fatalf("expected no errors after a requested stop, got %d", errs)
	}
	if err := source.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}

func TestFFmpegSourceEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	source := NewFFmpegSource(FFmpegConfig{Command: script}, zaptest.NewLogger(t))

	var c collector
	err := source.Start(context.Background(), c.onData, c.onError)
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, errs := c.snapshot(); errs != 0 {
		t.Fatalf("early exit must not be reported through onError")
	}
}

func TestFFmpegSourceReportsUnexpectedExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "crash.sh", "#!/usr/bin/env bash\nsleep 0.5\necho 'device lost' 1>&2\nexit 3\n")
	source := NewFFmpegSource(FFmpegConfig{Command: script}, zaptest.NewLogger(t))

	var c collector
	if err := source.Start(context.Background(), c.onData, c.onError); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, errs := c.snapshot(); errs == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected unexpected exit to be reported")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.mu.Lock()
	msg := c.errs[0].Error()
	c.mu.Unlock()
	if !strings.Contains(msg, "device lost") {
		t.Fatalf("expected stderr in error, got %q", msg)
	}
	_ = source.Stop()
}

func TestFFmpegArgs(t *testing.T) {
	source := NewFFmpegSource(FFmpegConfig{InputFormat: "alsa", InputDevice: "hw:1", SampleRate: 44100, Channels: 2}, zaptest.NewLogger(t))
	got := strings.Join(source.args(), " ")
	want := "-nostdin -hide_banner -loglevel warning -f alsa -i hw:1 -ac 2 -ar 44100 -f s16le -"
	if got != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", got, want)
	}
}

func TestNormalizeStopErr(t *testing.T) {
	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
	other := errors.New("pipe broken")
	if got := normalizeStopErr(other); got != other {
		t.Fatalf("expected other errors to pass through, got %v", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
