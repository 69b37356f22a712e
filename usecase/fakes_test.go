package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var (
	_ repositories.SpeechToText    = (*fakeSTT)(nil)
	_ repositories.AudioSource     = (*fakeSource)(nil)
	_ repositories.TranscriptStore = (*memStore)(nil)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSTT struct {
	mu        sync.Mutex
	healthErr error
	calls     int
	// respond builds the result of the n-th call (1-based)
	respond func(n int) (*entities.TranscriptEntry, error)
}

func (f *fakeSTT) Transcribe(ctx context.Context, wav []byte) (*entities.TranscriptEntry, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return &entities.TranscriptEntry{Text: fmt.Sprintf("utterance %d", n)}, nil
	}
	return respond(n)
}

func (f *fakeSTT) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeSTT) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource struct {
	mu       sync.Mutex
	startErr error
	// delivered synchronously from inside Start
	onStart  [][]byte
	onData   func([]byte)
	onError  func(error)
	starts   int
	stops    int
}

func (f *fakeSource) Start(ctx context.Context, onData func([]byte), onError func(error)) error {
	f.mu.Lock()
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.starts++
	f.onData = onData
	f.onError = onError
	early := f.onStart
	f.mu.Unlock()

	for _, data := range early {
		onData(data)
	}
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSource) push(data []byte) {
	f.mu.Lock()
	onData := f.onData
	f.mu.Unlock()
	onData(data)
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	onError(err)
}

type memStore struct {
	mu          sync.Mutex
	initialized int
	lines       []string
	entries     []entities.TranscriptEntry
	deleted     bool
}

func (m *memStore) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized++
	return nil
}

func (m *memStore) Append(ctx context.Context, entry entities.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	m.lines = append(m.lines, entry.Text)
	return nil
}

func (m *memStore) AppendSystemMessage(ctx context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, "--- "+message+" ---")
	return nil
}

func (m *memStore) Content(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.lines, "\n"), nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
	m.entries = nil
	return nil
}

func (m *memStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = true
	return nil
}

func (m *memStore) Path() string {
	return "memory://transcript"
}

func (m *memStore) Entries() []entities.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.TranscriptEntry(nil), m.entries...)
}

func (m *memStore) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []entities.StatusChangeEvent
}

func (r *recordingSink) Emit(event entities.StatusChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) Types() []entities.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]entities.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

func (r *recordingSink) Last(t entities.EventType) (entities.StatusChangeEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return entities.StatusChangeEvent{}, false
}

func (r *recordingSink) Count(t entities.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
