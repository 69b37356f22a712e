package usecase

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/scribe/domain"
	"github.com/satriahrh/scribe/domain/entities"
)

const (
	testSampleRate   = 4
	testChunkSeconds = 8
	// 4 Hz mono 16-bit for 8 seconds
	testChunkBytes = testSampleRate * 2 * testChunkSeconds
)

type harness struct {
	svc    *TranscriptionService
	stt    *fakeSTT
	source *fakeSource
	store  *memStore
	sink   *recordingSink
	clock  *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		stt:    &fakeSTT{},
		source: &fakeSource{},
		store:  &memStore{},
		sink:   &recordingSink{},
		clock:  newFakeClock(),
	}
	cfg := DefaultTranscriptionConfig()
	cfg.SampleRate = testSampleRate
	cfg.ChunkSeconds = testChunkSeconds
	cfg.StopGrace = time.Second
	h.svc = NewTranscriptionService(h.stt, h.source, h.store, h.sink, cfg, zaptest.NewLogger(t), WithClock(h.clock.Now))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.svc.Start(context.Background()))
}

func silentChunk() []byte {
	return make([]byte, testChunkBytes)
}

func loudChunk() []byte {
	pcm := make([]byte, testChunkBytes)
	sample := int16(-4000)
	binary.LittleEndian.PutUint16(pcm[6:], uint16(sample))
	return pcm
}

func (h *harness) waitProcessed(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.svc.Status().ChunksProcessed == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStart(t *testing.T) {
	t.Run("fresh status", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)

		st := h.svc.Status()
		assert.True(t, st.IsRunning)
		assert.False(t, st.IsPaused)
		assert.NotEmpty(t, st.ID)
		assert.Equal(t, 1, h.store.initialized)
		assert.Equal(t, []entities.EventType{entities.EventStarted}, h.sink.Types())
	})

	t.Run("already running", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		err := h.svc.Start(context.Background())
		assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
		assert.Equal(t, 1, h.source.starts)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		h := newHarness(t)
		h.stt.healthErr = errors.New("401 unauthorized")

		err := h.svc.Start(context.Background())
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		assert.False(t, h.svc.Status().IsRunning)
		assert.Empty(t, h.sink.Types())
		assert.Equal(t, 0, h.source.starts)
	})

	t.Run("audio source failure", func(t *testing.T) {
		h := newHarness(t)
		h.source.startErr = errors.New("no such device")

		err := h.svc.Start(context.Background())
		assert.ErrorIs(t, err, domain.ErrAudioSourceFailed)
		assert.False(t, h.svc.Status().IsRunning)
		assert.Empty(t, h.sink.Types())
	})

	t.Run("counters reset on restart", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		h.source.push(silentChunk())
		require.Equal(t, 1, h.svc.Status().SilentChunksSkipped)
		require.NoError(t, h.svc.Stop(context.Background()))

		h.start(t)
		st := h.svc.Status()
		assert.Equal(t, 0, st.SilentChunksSkipped)
		assert.Equal(t, 0, st.ChunksProcessed)
	})
}

func TestPauseResumeErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Pause(ctx), domain.ErrNotRunning)
	assert.ErrorIs(t, h.svc.Resume(ctx), domain.ErrNotRunning)

	h.start(t)
	assert.ErrorIs(t, h.svc.Resume(ctx), domain.ErrNotPaused)
	require.NoError(t, h.svc.Pause(ctx))
	assert.ErrorIs(t, h.svc.Pause(ctx), domain.ErrAlreadyPaused)

	st := h.svc.Status()
	assert.True(t, st.IsPaused)
	assert.Equal(t, entities.PauseReasonManual, st.PauseReason)
	assert.NotEmpty(t, st.Warning)

	require.NoError(t, h.svc.Resume(ctx))
	resumed, ok := h.sink.Last(entities.EventResumed)
	require.True(t, ok)
	assert.Equal(t, entities.PauseReasonManual, resumed.PreviousReason)
	assert.Empty(t, h.svc.Status().Warning)

	require.NoError(t, h.svc.Stop(ctx))
	assert.ErrorIs(t, h.svc.Pause(ctx), domain.ErrNotRunning)
	assert.ErrorIs(t, h.svc.Resume(ctx), domain.ErrNotRunning)
}

func TestSilencePausesAfterThreshold(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	for i := 0; i < 3; i++ {
		h.source.push(silentChunk())
	}
	st := h.svc.Status()
	assert.False(t, st.IsPaused)
	assert.Equal(t, 3, st.SilentChunksSkipped)
	assert.Equal(t, 3, st.ConsecutiveSilentChunks)
	assert.Equal(t, 3, h.sink.Count(entities.EventSilenceDetected))

	h.source.push(silentChunk())
	st = h.svc.Status()
	assert.True(t, st.IsPaused)
	assert.Equal(t, entities.PauseReasonSilence, st.PauseReason)
	assert.Equal(t, 4, st.SilentChunksSkipped)

	paused, ok := h.sink.Last(entities.EventPaused)
	require.True(t, ok)
	assert.Equal(t, entities.PauseReasonSilence, paused.Reason)
	assert.NotEmpty(t, paused.Message)
	assert.Equal(t, paused.Message, st.Warning)
	last, _ := h.sink.Last(entities.EventSilenceDetected)
	assert.Equal(t, 4, last.ConsecutiveChunks)

	// quiet units during the silence pause are discarded without counting
	h.source.push(silentChunk())
	assert.Equal(t, 4, h.svc.Status().SilentChunksSkipped)
	assert.Equal(t, 0, h.stt.Calls())
}

func TestSilencePauseAutoResumesWithAudibleUnit(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	for i := 0; i < 4; i++ {
		h.source.push(silentChunk())
	}
	require.True(t, h.svc.Status().IsPaused)

	h.source.push(loudChunk())

	resumed, ok := h.sink.Last(entities.EventResumed)
	require.True(t, ok)
	assert.Equal(t, entities.PauseReasonSilence, resumed.PreviousReason)
	assert.False(t, h.svc.Status().IsPaused)
	// the resume itself resets the streak, so no audio_detected
	assert.Equal(t, 0, h.sink.Count(entities.EventAudioDetected))

	h.waitProcessed(t, 1)
	assert.Equal(t, 1, h.stt.Calls())
	assert.Contains(t, h.store.Lines(), "--- Audio detected, transcription resumed ---")
}

func TestAudioDetectedResetsStreak(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.source.push(silentChunk())
	h.source.push(silentChunk())
	h.source.push(loudChunk())

	st := h.svc.Status()
	assert.Equal(t, 0, st.ConsecutiveSilentChunks)
	assert.Equal(t, 2, st.SilentChunksSkipped)
	assert.Equal(t, []entities.EventType{
		entities.EventStarted,
		entities.EventSilenceDetected,
		entities.EventSilenceDetected,
		entities.EventAudioDetected,
	}, h.sink.Types())
	h.waitProcessed(t, 1)
}

func TestManualPauseDiscardsAudio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t)

	require.NoError(t, h.svc.Pause(ctx))
	h.source.push(loudChunk())
	h.source.push(silentChunk())

	st := h.svc.Status()
	assert.True(t, st.IsPaused)
	assert.Equal(t, entities.PauseReasonManual, st.PauseReason)
	assert.Equal(t, 0, st.SilentChunksSkipped)
	assert.Equal(t, 0, h.stt.Calls())

	require.NoError(t, h.svc.Resume(ctx))
	h.source.push(loudChunk())
	h.waitProcessed(t, 1)
	assert.Equal(t, 1, h.stt.Calls())
}

func TestInactivityForcesPause(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.clock.Advance(31 * time.Minute)
	h.source.push(loudChunk())

	st := h.svc.Status()
	assert.True(t, st.IsPaused)
	assert.Equal(t, entities.PauseReasonInactivity, st.PauseReason)
	assert.NotEmpty(t, st.Warning)

	warning, ok := h.sink.Last(entities.EventWarning)
	require.True(t, ok)
	assert.Equal(t, 31, warning.ElapsedMinutes)
	assert.Contains(t, warning.Message, "31 minutes")

	// the unit that tripped the safeguard is still transcribed
	h.waitProcessed(t, 1)

	// inactivity pauses never auto-resume
	h.source.push(loudChunk())
	assert.True(t, h.svc.Status().IsPaused)
	assert.Equal(t, 1, h.stt.Calls())

	require.NoError(t, h.svc.Resume(context.Background()))
	resumed, _ := h.sink.Last(entities.EventResumed)
	assert.Equal(t, entities.PauseReasonInactivity, resumed.PreviousReason)
	assert.Empty(t, h.svc.Status().Warning)
}

func TestInactivityCheckedOnSilentUnits(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.clock.Advance(30 * time.Minute)
	h.source.push(silentChunk())

	st := h.svc.Status()
	assert.Equal(t, entities.PauseReasonInactivity, st.PauseReason)
	assert.Equal(t, 1, h.sink.Count(entities.EventWarning))
}

func TestInteractionDefersInactivity(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.clock.Advance(29 * time.Minute)
	h.svc.Status()
	h.clock.Advance(2 * time.Minute)
	h.source.push(loudChunk())

	assert.False(t, h.svc.Status().IsPaused)
	assert.Equal(t, 0, h.sink.Count(entities.EventWarning))
	h.waitProcessed(t, 1)
}

func TestCheckInactivityWithoutAudio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.CheckInactivity(ctx)
	h.start(t)
	h.svc.CheckInactivity(ctx)
	assert.False(t, h.svc.Status().IsPaused)

	h.clock.Advance(45 * time.Minute)
	h.svc.CheckInactivity(ctx)
	warning, ok := h.sink.Last(entities.EventWarning)
	require.True(t, ok)
	assert.Equal(t, 45, warning.ElapsedMinutes)

	// an already paused session is left alone
	h.svc.CheckInactivity(ctx)
	assert.Equal(t, 1, h.sink.Count(entities.EventWarning))
}

func TestTranscriptionFailureCountsError(t *testing.T) {
	h := newHarness(t)
	h.stt.respond = func(n int) (*entities.TranscriptEntry, error) {
		if n == 1 {
			return nil, errors.New("503 service unavailable")
		}
		return &entities.TranscriptEntry{Text: "recovered"}, nil
	}
	h.start(t)

	h.source.push(loudChunk())
	require.Eventually(t, func() bool {
		return h.svc.Status().Errors == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, h.svc.Status().IsRunning)

	h.source.push(loudChunk())
	h.waitProcessed(t, 1)
	assert.Equal(t, "recovered", h.store.Entries()[0].Text)
}

func TestEmptyTranscriptionIsNotCounted(t *testing.T) {
	h := newHarness(t)
	h.stt.respond = func(n int) (*entities.TranscriptEntry, error) {
		if n == 1 {
			return nil, nil
		}
		return &entities.TranscriptEntry{Text: "  "}, nil
	}
	h.start(t)

	h.source.push(loudChunk())
	h.source.push(loudChunk())
	require.Eventually(t, func() bool { return h.stt.Calls() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.svc.Stop(context.Background()))

	st := h.svc.Status()
	assert.Equal(t, 0, st.ChunksProcessed)
	assert.Equal(t, 0, st.Errors)
	assert.Nil(t, st.LastTranscriptTime)
	assert.Empty(t, h.store.Entries())
}

func TestTranscriptEntriesKeepCaptureOrder(t *testing.T) {
	h := newHarness(t)
	h.stt.respond = func(n int) (*entities.TranscriptEntry, error) {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return &entities.TranscriptEntry{Text: string(rune('a' + n - 1))}, nil
	}
	h.start(t)

	for i := 0; i < 6; i++ {
		h.source.push(loudChunk())
	}
	h.waitProcessed(t, 6)

	var texts []string
	for _, e := range h.store.Entries() {
		texts = append(texts, e.Text)
		assert.Equal(t, h.svc.Status().ID, e.SessionID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, texts)
}

func TestPartialChunksAreBuffered(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	chunk := silentChunk()
	h.source.push(chunk[:10])
	assert.Equal(t, 0, h.sink.Count(entities.EventSilenceDetected))
	h.source.push(chunk[10:])
	assert.Equal(t, 1, h.sink.Count(entities.EventSilenceDetected))
}

func TestStop(t *testing.T) {
	t.Run("not running is a no-op", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.svc.Stop(context.Background()))
		assert.Empty(t, h.sink.Types())
		assert.Equal(t, 0, h.source.stops)
	})

	t.Run("emits stats and keeps pause flag", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		h.start(t)

		h.source.push(loudChunk())
		h.waitProcessed(t, 1)
		require.NoError(t, h.svc.Pause(ctx))
		h.clock.Advance(90 * time.Second)

		require.NoError(t, h.svc.Stop(ctx))
		assert.Equal(t, 1, h.source.stops)

		st := h.svc.Status()
		assert.False(t, st.IsRunning)
		assert.True(t, st.IsPaused)

		stopped, ok := h.sink.Last(entities.EventStopped)
		require.True(t, ok)
		require.NotNil(t, stopped.Stats)
		assert.Equal(t, 1, stopped.Stats.ChunksProcessed)
		assert.InDelta(t, 90, stopped.Stats.DurationSeconds, 0.001)

		require.NoError(t, h.svc.Stop(ctx))
		assert.Equal(t, 1, h.sink.Count(entities.EventStopped))
	})

	t.Run("ignores audio after stop", func(t *testing.T) {
		h := newHarness(t)
		h.start(t)
		require.NoError(t, h.svc.Stop(context.Background()))

		h.source.push(loudChunk())
		h.source.push(silentChunk())
		assert.Equal(t, 0, h.stt.Calls())
		assert.Equal(t, 0, h.svc.Status().SilentChunksSkipped)
	})
}

func TestAudioSourceErrorKeepsSessionRunning(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.source.fail(errors.New("device unplugged"))

	st := h.svc.Status()
	assert.True(t, st.IsRunning)
	assert.Equal(t, 1, st.Errors)
	event, ok := h.sink.Last(entities.EventError)
	require.True(t, ok)
	assert.Contains(t, event.Message, "device unplugged")
}

func TestTranscriptOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t)

	h.source.push(loudChunk())
	h.waitProcessed(t, 1)

	content, err := h.svc.Transcript(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "utterance 1")
	assert.Equal(t, "memory://transcript", h.svc.TranscriptPath())

	require.NoError(t, h.svc.ClearTranscript(ctx))
	content, err = h.svc.Transcript(ctx)
	require.NoError(t, err)
	assert.Empty(t, content)
	assert.True(t, h.svc.Status().IsRunning)

	assert.ErrorIs(t, h.svc.DeleteTranscript(ctx), domain.ErrAlreadyRunning)
	require.NoError(t, h.svc.Stop(ctx))
	require.NoError(t, h.svc.DeleteTranscript(ctx))
	assert.True(t, h.store.deleted)
}

func TestStatusCosts(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.source.push(loudChunk())
	h.source.push(silentChunk())
	h.waitProcessed(t, 1)

	st := h.svc.Status()
	assert.Equal(t, testChunkSeconds, st.ChunkSeconds)
	assert.InDelta(t, entities.EstimatedCost(1, testChunkSeconds), st.EstimatedCost, 1e-12)
	assert.InDelta(t, entities.CostSaved(1, testChunkSeconds), st.CostSaved, 1e-12)
}

func TestSnapshotDoesNotCountAsInteraction(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.clock.Advance(20 * time.Minute)
	snap := h.svc.Snapshot()
	assert.True(t, snap.IsRunning)

	h.clock.Advance(11 * time.Minute)
	h.svc.CheckInactivity(context.Background())

	st := h.svc.Snapshot()
	assert.True(t, st.IsPaused)
	assert.Equal(t, entities.PauseReasonInactivity, st.PauseReason)
}

func TestInactivityNoticeReportsElapsedTimeAndCost(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.source.push(loudChunk())
	h.waitProcessed(t, 1)

	h.clock.Advance(31 * time.Minute)
	h.source.push(silentChunk())
	require.Equal(t, entities.PauseReasonInactivity, h.svc.Snapshot().PauseReason)

	content, err := h.store.Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, content, "31 minutes")
	assert.Contains(t, content, fmt.Sprintf("$%.4f", entities.EstimatedCost(1, testChunkSeconds)))
}

func TestFullQueueDropsChunkWithoutBlocking(t *testing.T) {
	h := newHarness(t)
	unblock := make(chan struct{})
	h.stt.respond = func(n int) (*entities.TranscriptEntry, error) {
		<-unblock
		return &entities.TranscriptEntry{Text: "late"}, nil
	}
	h.start(t)
	t.Cleanup(func() { h.svc.Stop(context.Background()) })

	// the first unit occupies the consumer
	h.source.push(loudChunk())
	require.Eventually(t, func() bool { return h.stt.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	queueSize := DefaultTranscriptionConfig().QueueSize
	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for i := 0; i < queueSize+3; i++ {
			h.source.push(loudChunk())
		}
	}()

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		close(unblock)
		t.Fatal("audio callback blocked on a full transcription queue")
	}

	assert.Equal(t, 3, h.svc.Snapshot().Errors)
	close(unblock)
	h.waitProcessed(t, queueSize+1)
}

func TestAudioDuringSourceStartFollowsStarted(t *testing.T) {
	h := newHarness(t)
	h.source.onStart = [][]byte{silentChunk(), silentChunk()[:10]}
	h.start(t)

	assert.Equal(t, []entities.EventType{
		entities.EventStarted,
		entities.EventSilenceDetected,
	}, h.sink.Types())

	// the partial unit delivered during Start is kept for the next push
	h.source.push(silentChunk()[10:])
	assert.Equal(t, 2, h.svc.Snapshot().SilentChunksSkipped)
}
