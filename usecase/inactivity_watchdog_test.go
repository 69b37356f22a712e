package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/scribe/domain/entities"
)

type countingChecker struct {
	calls atomic.Int32
}

func (c *countingChecker) CheckInactivity(ctx context.Context) {
	c.calls.Add(1)
}

func TestInactivityWatchdogTicks(t *testing.T) {
	checker := &countingChecker{}
	w := NewInactivityWatchdog(checker, 5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return checker.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
}

func TestInactivityWatchdogPausesIdleSession(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.clock.Advance(31 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewInactivityWatchdog(h.svc, 5*time.Millisecond, zaptest.NewLogger(t)).Run(ctx)

	// polling Status would count as interaction, so watch the sink instead
	require.Eventually(t, func() bool {
		return h.sink.Count(entities.EventWarning) == 1
	}, time.Second, 5*time.Millisecond)

	ev, _ := h.sink.Last(entities.EventWarning)
	assert.Equal(t, 31, ev.ElapsedMinutes)
	assert.Equal(t, entities.PauseReasonInactivity, h.svc.Status().PauseReason)
}
