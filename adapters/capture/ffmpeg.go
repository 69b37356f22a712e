package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/repositories"
)

var _ repositories.AudioSource = (*FFmpegSource)(nil)

const (
	startupWindow = 250 * time.Millisecond
	stopTimeout   = 1200 * time.Millisecond
	readSize      = 4096
)

// FFmpegConfig selects the capture device and PCM format
type FFmpegConfig struct {
	Command     string `yaml:"command"`
	InputFormat string `yaml:"input_format"`
	InputDevice string `yaml:"input_device"`
	SampleRate  int    `yaml:"-"`
	Channels    int    `yaml:"-"`
}

// FFmpegSource streams microphone PCM audio using ffmpeg
type FFmpegSource struct {
	config FFmpegConfig
	logger *zap.Logger

	mu      sync.Mutex
	process *ffmpegProcess
}

// NewFFmpegSource creates an ffmpeg-backed audio source
func NewFFmpegSource(config FFmpegConfig, logger *zap.Logger) *FFmpegSource {
	if config.Command == "" {
		config.Command = "ffmpeg"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	if config.InputFormat == "" {
		config.InputFormat = "pulse"
	}
	if config.InputDevice == "" {
		config.InputDevice = "default"
	}
	return &FFmpegSource{config: config, logger: logger}
}

func (s *FFmpegSource) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.config.InputFormat,
		"-i", s.config.InputDevice,
		"-ac", strconv.Itoa(s.config.Channels),
		"-ar", strconv.Itoa(s.config.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Start launches ffmpeg and streams its stdout to onData. An ffmpeg that exits
// within the startup window is reported as a start failure; a later exit goes to onError.
func (s *FFmpegSource) Start(ctx context.Context, onData func([]byte), onError func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.process != nil {
		return errors.New("ffmpeg capture already started")
	}

	cmd := exec.CommandContext(ctx, s.config.Command, s.args()...)
	p := &ffmpegProcess{cmd: cmd, done: make(chan struct{})}
	cmd.Stderr = &p.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	p.stdout = stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go p.run(onData, onError)

	select {
	case <-p.done:
	case <-time.After(startupWindow):
	}
	if !p.markStarted() {
		return fmt.Errorf("ffmpeg exited before capture started: %v: %s", p.waitErr, p.stderrText())
	}

	s.process = p
	s.logger.Info("ffmpeg capture started",
		zap.String("format", s.config.InputFormat),
		zap.String("device", s.config.InputDevice),
		zap.Int("sampleRate", s.config.SampleRate),
		zap.Int("channels", s.config.Channels))
	return nil
}

// Stop interrupts ffmpeg and kills it if it does not exit in time
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	p := s.process
	s.process = nil
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.stop()
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer

	done     chan struct{}
	waitErr  error
	stopping atomic.Bool

	mu      sync.Mutex
	started bool
	exited  bool
}

func (p *ffmpegProcess) run(onData func([]byte), onError func(error)) {
	defer close(p.done)

	buf := make([]byte, readSize)
	for {
		n, err := p.stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onData(chunk)
		}
		if err != nil {
			break
		}
	}

	p.waitErr = p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	report := p.started && !p.stopping.Load()
	p.mu.Unlock()

	if report && onError != nil {
		onError(fmt.Errorf("ffmpeg exited unexpectedly: %v: %s", p.waitErr, p.stderrText()))
	}
}

// markStarted records a successful start unless the process already exited
func (p *ffmpegProcess) markStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return false
	}
	p.started = true
	return true
}

func (p *ffmpegProcess) stop() error {
	p.stopping.Store(true)
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.stdout.Close()
		<-p.done
	}

	if err := normalizeStopErr(p.waitErr); err != nil {
		return fmt.Errorf("%w: %s", err, p.stderrText())
	}
	return nil
}

// stderrText is only safe once the process has been waited for
func (p *ffmpegProcess) stderrText() string {
	return string(bytes.TrimSpace(p.stderr.Bytes()))
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
