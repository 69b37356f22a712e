package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain"
	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
	"github.com/satriahrh/scribe/internal/audio"
)

// TranscriptionConfig tunes chunking, silence detection and the safeguards of a session
type TranscriptionConfig struct {
	SampleRate         int
	Channels           int
	ChunkSeconds       int
	SilenceAmplitude   int
	SilenceStride      int
	SilenceThreshold   int
	InactivityTimeout  time.Duration
	StopGrace          time.Duration
	TranscribeTimeout  time.Duration
	QueueSize          int
	StopOnAudioFailure bool
}

// DefaultTranscriptionConfig returns 16 kHz mono, 8 second chunks and the standard safeguards
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		SampleRate:        16000,
		Channels:          1,
		ChunkSeconds:      8,
		SilenceAmplitude:  audio.DefaultSilenceAmplitude,
		SilenceStride:     1,
		SilenceThreshold:  entities.SilenceThreshold,
		InactivityTimeout: entities.InactivityTimeout,
		StopGrace:         500 * time.Millisecond,
		TranscribeTimeout: 60 * time.Second,
		QueueSize:         16,
	}
}

func (c TranscriptionConfig) withDefaults() TranscriptionConfig {
	d := DefaultTranscriptionConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	if c.ChunkSeconds <= 0 {
		c.ChunkSeconds = d.ChunkSeconds
	}
	if c.SilenceAmplitude <= 0 {
		c.SilenceAmplitude = d.SilenceAmplitude
	}
	if c.SilenceStride <= 0 {
		c.SilenceStride = d.SilenceStride
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.StopGrace < 0 {
		c.StopGrace = 0
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = d.TranscribeTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// Option customizes a TranscriptionService
type Option func(*TranscriptionService)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *TranscriptionService) {
		s.now = now
	}
}

// session is the per-start state. A new one is created on every Start.
type session struct {
	status     *entities.SessionStatus
	chunker    *audio.Chunker
	queue      chan []byte
	closing    chan struct{}
	workerDone chan struct{}
	cancel     context.CancelFunc

	// audio delivered before started is emitted waits in pending
	ingestMu sync.Mutex
	live     bool
	pending  [][]byte
}

// goLive replays audio that arrived while the source was starting and
// then feeds the chunker directly.
func (sess *session) goLive() {
	sess.ingestMu.Lock()
	defer sess.ingestMu.Unlock()
	sess.live = true
	for _, data := range sess.pending {
		sess.chunker.Feed(data)
	}
	sess.pending = nil
}

// TranscriptionService owns the session state machine. It decides per chunk whether
// to transcribe, skip, auto-pause or auto-resume, and reports every transition to the sink.
type TranscriptionService struct {
	stt      repositories.SpeechToText
	source   repositories.AudioSource
	store    repositories.TranscriptStore
	sink     repositories.EventSink
	logger   *zap.Logger
	cfg      TranscriptionConfig
	detector audio.SilenceDetector
	now      func() time.Time

	mu       sync.Mutex
	current  *session
	starting bool

	// held while delivering events so sinks observe transitions in order
	emitMu sync.Mutex
}

// NewTranscriptionService creates the session orchestrator. sink may be nil.
func NewTranscriptionService(
	stt repositories.SpeechToText,
	source repositories.AudioSource,
	store repositories.TranscriptStore,
	sink repositories.EventSink,
	cfg TranscriptionConfig,
	logger *zap.Logger,
	opts ...Option,
) *TranscriptionService {
	cfg = cfg.withDefaults()
	s := &TranscriptionService{
		stt:      stt,
		source:   source,
		store:    store,
		sink:     sink,
		logger:   logger,
		cfg:      cfg,
		detector: audio.NewSilenceDetector(cfg.SilenceAmplitude, cfg.SilenceStride),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates credentials, prepares the transcript and begins ingesting audio
func (s *TranscriptionService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.starting || (s.current != nil && s.current.status.IsRunning) {
		s.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	s.starting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	if err := s.stt.HealthCheck(ctx); err != nil {
		s.logger.Warn("Speech-to-text health check failed", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}

	if err := s.store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize transcript: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		status:     entities.NewSessionStatus(s.now()),
		queue:      make(chan []byte, s.cfg.QueueSize),
		closing:    make(chan struct{}),
		workerDone: make(chan struct{}),
		cancel:     cancel,
	}
	sess.chunker = audio.NewChunker(s.cfg.SampleRate, s.cfg.Channels, s.cfg.ChunkSeconds, func(wav []byte) {
		s.processChunk(sess, wav)
	})

	s.mu.Lock()
	previous := s.current
	s.current = sess
	s.mu.Unlock()

	go s.transcribeLoop(sess)

	err := s.source.Start(sessionCtx,
		func(data []byte) { s.ingest(sess, data) },
		func(err error) { s.handleSourceError(sess, err) },
	)
	if err != nil {
		s.mu.Lock()
		s.current = previous
		s.mu.Unlock()
		cancel()
		close(sess.closing)
		return fmt.Errorf("%w: %v", domain.ErrAudioSourceFailed, err)
	}

	s.logger.Info("Transcription session started",
		zap.String("sessionID", sess.status.ID),
		zap.Int("sampleRate", s.cfg.SampleRate),
		zap.Int("chunkSeconds", s.cfg.ChunkSeconds))

	s.mu.Lock()
	s.release(ctx, []entities.StatusChangeEvent{s.newEvent(sess, entities.EventStarted)}, nil)
	sess.goLive()
	return nil
}

// Pause manually pauses a running session. Manual pauses never auto-resume.
func (s *TranscriptionService) Pause(ctx context.Context) error {
	s.mu.Lock()
	sess := s.current
	if sess == nil || !sess.status.IsRunning {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	st := sess.status
	if st.IsPaused {
		s.mu.Unlock()
		return domain.ErrAlreadyPaused
	}

	const notice = "Transcription paused by user"
	st.Pause(entities.PauseReasonManual, notice)
	st.Touch(s.now())

	event := s.newEvent(sess, entities.EventPaused)
	event.Reason = entities.PauseReasonManual
	event.Message = notice
	s.release(ctx, []entities.StatusChangeEvent{event}, []string{notice})
	return nil
}

// Resume lifts a pause of any reason
func (s *TranscriptionService) Resume(ctx context.Context) error {
	s.mu.Lock()
	sess := s.current
	if sess == nil || !sess.status.IsRunning {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	st := sess.status
	if !st.IsPaused {
		s.mu.Unlock()
		return domain.ErrNotPaused
	}

	previous := st.Resume()
	st.Touch(s.now())

	event := s.newEvent(sess, entities.EventResumed)
	event.PreviousReason = previous
	notice := fmt.Sprintf("Transcription resumed (was paused: %s)", previous)
	s.release(ctx, []entities.StatusChangeEvent{event}, []string{notice})
	return nil
}

// Stop halts ingestion. Stopping a session that is not running is a no-op.
// Transcriptions already in flight are allowed to finish within the grace period.
func (s *TranscriptionService) Stop(ctx context.Context) error {
	s.mu.Lock()
	sess := s.current
	if sess == nil || !sess.status.IsRunning {
		s.mu.Unlock()
		return nil
	}
	sess.status.IsRunning = false
	sess.status.Touch(s.now())
	s.mu.Unlock()

	if err := s.source.Stop(); err != nil {
		s.logger.Warn("Audio source did not stop cleanly",
			zap.String("sessionID", sess.status.ID),
			zap.Error(err))
	}
	sess.cancel()
	close(sess.closing)
	sess.ingestMu.Lock()
	sess.chunker.Reset()
	sess.pending = nil
	sess.ingestMu.Unlock()

	grace := time.NewTimer(s.cfg.StopGrace)
	defer grace.Stop()
	select {
	case <-sess.workerDone:
	case <-grace.C:
	case <-ctx.Done():
	}

	s.mu.Lock()
	st := sess.status
	event := s.newEvent(sess, entities.EventStopped)
	event.Stats = &entities.StopStats{
		ChunksProcessed: st.ChunksProcessed,
		DurationSeconds: st.Duration(s.now()).Seconds(),
		Errors:          st.Errors,
	}
	s.logger.Info("Transcription session stopped",
		zap.String("sessionID", st.ID),
		zap.Int("chunksProcessed", st.ChunksProcessed),
		zap.Int("silentChunksSkipped", st.SilentChunksSkipped),
		zap.Int("errors", st.Errors))
	s.release(ctx, []entities.StatusChangeEvent{event}, nil)
	return nil
}

// Status returns a snapshot of the current (or last) session with derived costs
func (s *TranscriptionService) Status() entities.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.current
	if sess == nil {
		return entities.Snapshot{ChunkSeconds: s.cfg.ChunkSeconds}
	}
	s.touchLocked(sess)
	return sess.status.Snapshot(s.cfg.ChunkSeconds)
}

// Snapshot returns the same view as Status without counting as interaction.
// Metrics, health checks and connection greetings use it.
func (s *TranscriptionService) Snapshot() entities.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return entities.Snapshot{ChunkSeconds: s.cfg.ChunkSeconds}
	}
	return s.current.status.Snapshot(s.cfg.ChunkSeconds)
}

// Transcript returns the full transcript document
func (s *TranscriptionService) Transcript(ctx context.Context) (string, error) {
	s.touch()
	content, err := s.store.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return content, nil
}

// ClearTranscript empties the transcript while keeping the session going
func (s *TranscriptionService) ClearTranscript(ctx context.Context) error {
	s.touch()
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// DeleteTranscript removes the transcript entirely. Not allowed while running.
func (s *TranscriptionService) DeleteTranscript(ctx context.Context) error {
	s.mu.Lock()
	running := s.current != nil && s.current.status.IsRunning
	s.mu.Unlock()
	if running {
		return domain.ErrAlreadyRunning
	}
	if err := s.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

// TranscriptPath returns where the transcript is stored
func (s *TranscriptionService) TranscriptPath() string {
	s.touch()
	return s.store.Path()
}

// CheckInactivity applies the inactivity safeguard outside the audio path,
// so a stalled audio source cannot keep an idle session running.
func (s *TranscriptionService) CheckInactivity(ctx context.Context) {
	s.mu.Lock()
	sess := s.current
	if sess == nil || !sess.status.IsRunning {
		s.mu.Unlock()
		return
	}
	events, notices := s.checkInactivityLocked(sess, s.now())
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}
	s.release(ctx, events, notices)
}

func (s *TranscriptionService) ingest(sess *session, data []byte) {
	s.mu.Lock()
	live := s.current == sess && sess.status.IsRunning
	s.mu.Unlock()
	if !live {
		return
	}

	sess.ingestMu.Lock()
	defer sess.ingestMu.Unlock()
	if !sess.live {
		sess.pending = append(sess.pending, append([]byte(nil), data...))
		return
	}
	sess.chunker.Feed(data)
}

// processChunk runs the per-unit decision. Classification always happens first.
func (s *TranscriptionService) processChunk(sess *session, wav []byte) {
	silent := s.detector.IsSilent(wav)

	s.mu.Lock()
	if s.current != sess || !sess.status.IsRunning {
		s.mu.Unlock()
		return
	}
	st := sess.status
	now := s.now()

	var events []entities.StatusChangeEvent
	var notices []string
	dispatch := false

	switch {
	case st.IsPaused && !st.PauseReason.AutoResumes():
		// manual or inactivity pause: discard

	case st.IsPaused && silent:
		// still quiet during a silence pause: discard

	case st.IsPaused:
		previous := st.Resume()
		event := s.newEvent(sess, entities.EventResumed)
		event.PreviousReason = previous
		events = append(events, event)
		notices = append(notices, "Audio detected, transcription resumed")
		dispatch = true

	case silent:
		st.SilentChunksSkipped++
		st.ConsecutiveSilentChunks++
		event := s.newEvent(sess, entities.EventSilenceDetected)
		event.ConsecutiveChunks = st.ConsecutiveSilentChunks
		events = append(events, event)

		if st.ConsecutiveSilentChunks >= s.cfg.SilenceThreshold {
			message := fmt.Sprintf("Paused after %d silent chunks (%d seconds of silence)",
				st.ConsecutiveSilentChunks, st.ConsecutiveSilentChunks*s.cfg.ChunkSeconds)
			st.Pause(entities.PauseReasonSilence, message)
			paused := s.newEvent(sess, entities.EventPaused)
			paused.Reason = entities.PauseReasonSilence
			paused.Message = message
			events = append(events, paused)
			notices = append(notices, message)
		}

	default:
		if st.ConsecutiveSilentChunks > 0 {
			st.ConsecutiveSilentChunks = 0
			events = append(events, s.newEvent(sess, entities.EventAudioDetected))
		}
		dispatch = true
	}

	inactivityEvents, inactivityNotices := s.checkInactivityLocked(sess, now)
	events = append(events, inactivityEvents...)
	notices = append(notices, inactivityNotices...)
	s.release(context.Background(), events, notices)

	if dispatch {
		s.enqueue(sess, wav)
	}
}

func (s *TranscriptionService) checkInactivityLocked(sess *session, now time.Time) ([]entities.StatusChangeEvent, []string) {
	st := sess.status
	if !st.IsRunning || st.IsPaused {
		return nil, nil
	}
	idle := st.IdleFor(now)
	if idle < s.cfg.InactivityTimeout {
		return nil, nil
	}

	minutes := int(idle / time.Minute)
	cost := entities.EstimatedCost(st.ChunksProcessed, s.cfg.ChunkSeconds)
	message := fmt.Sprintf("Auto-paused after %d minutes without interaction. Cost so far: $%.4f", minutes, cost)
	st.Pause(entities.PauseReasonInactivity, message)

	event := s.newEvent(sess, entities.EventWarning)
	event.Message = message
	event.ElapsedMinutes = minutes
	return []entities.StatusChangeEvent{event}, []string{message}
}

// enqueue never blocks the audio callback. A unit that does not fit in the
// queue is dropped and counted as an error.
func (s *TranscriptionService) enqueue(sess *session, wav []byte) {
	select {
	case sess.queue <- wav:
	case <-sess.closing:
	default:
		s.countError(sess)
		s.logger.Warn("Transcription queue full, dropping chunk",
			zap.String("sessionID", sess.status.ID),
			zap.Int("queueSize", cap(sess.queue)))
	}
}

// transcribeLoop is the single consumer of a session's queue, which keeps
// transcript entries in capture order.
func (s *TranscriptionService) transcribeLoop(sess *session) {
	defer close(sess.workerDone)
	for {
		select {
		case wav := <-sess.queue:
			s.transcribe(sess, wav)
		case <-sess.closing:
			for {
				select {
				case wav := <-sess.queue:
					s.transcribe(sess, wav)
				default:
					return
				}
			}
		}
	}
}

func (s *TranscriptionService) transcribe(sess *session, wav []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TranscribeTimeout)
	defer cancel()

	sessionID := sess.status.ID
	entry, err := s.stt.Transcribe(ctx, wav)
	if err != nil {
		s.countError(sess)
		s.logger.Warn("Chunk transcription failed",
			zap.String("sessionID", sessionID),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)))
		return
	}
	if entry == nil || strings.TrimSpace(entry.Text) == "" {
		s.logger.Debug("No speech in chunk", zap.String("sessionID", sessionID))
		return
	}

	now := s.now()
	entry.SessionID = sessionID
	entry.Text = strings.TrimSpace(entry.Text)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if err := s.store.Append(ctx, *entry); err != nil {
		s.countError(sess)
		s.logger.Error("Failed to append transcript entry",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	sess.status.ChunksProcessed++
	sess.status.LastTranscriptTime = &now
	s.mu.Unlock()
}

func (s *TranscriptionService) countError(sess *session) {
	s.mu.Lock()
	sess.status.Errors++
	s.mu.Unlock()
}

func (s *TranscriptionService) handleSourceError(sess *session, err error) {
	s.mu.Lock()
	if s.current != sess || !sess.status.IsRunning {
		s.mu.Unlock()
		return
	}
	sess.status.Errors++
	event := s.newEvent(sess, entities.EventError)
	event.Message = fmt.Errorf("%w: %v", domain.ErrAudioSourceFailed, err).Error()

	s.logger.Error("Audio source error",
		zap.String("sessionID", sess.status.ID),
		zap.Error(err))
	s.release(context.Background(), []entities.StatusChangeEvent{event}, nil)

	if s.cfg.StopOnAudioFailure {
		go func() {
			if err := s.Stop(context.Background()); err != nil {
				s.logger.Error("Failed to stop after audio failure", zap.Error(err))
			}
		}()
	}
}

func (s *TranscriptionService) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.touchLocked(s.current)
	}
}

func (s *TranscriptionService) touchLocked(sess *session) {
	if sess.status.IsRunning {
		sess.status.Touch(s.now())
	}
}

func (s *TranscriptionService) writeNotices(ctx context.Context, notices []string) {
	for _, notice := range notices {
		if err := s.store.AppendSystemMessage(ctx, notice); err != nil {
			s.logger.Warn("Failed to write transcript notice",
				zap.String("notice", notice),
				zap.Error(err))
		}
	}
}

func (s *TranscriptionService) newEvent(sess *session, t entities.EventType) entities.StatusChangeEvent {
	return entities.StatusChangeEvent{
		Type:      t,
		SessionID: sess.status.ID,
		Timestamp: s.now(),
	}
}

// release must be called with s.mu held. It hands over to emitMu before unlocking,
// so notices and events of concurrent transitions come out in transition order.
// Sinks must not call back into Start, Pause, Resume or Stop.
func (s *TranscriptionService) release(ctx context.Context, events []entities.StatusChangeEvent, notices []string) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	s.writeNotices(ctx, notices)
	if s.sink == nil {
		return
	}
	for _, event := range events {
		s.sink.Emit(event)
	}
}
