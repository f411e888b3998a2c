package ember

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberlog/ember/formatter"
)

// Monitor is a producer-side facade originating log events. Each monitor
// stamps its events with a strictly increasing (previous, next) time pair so
// ordering within one producer is recoverable from the entries alone.
type Monitor struct {
	id       uuid.UUID
	sink     *DispatcherSink
	baseTags TagSet

	mu   sync.Mutex
	prev time.Time
}

// NewMonitor creates a monitor bound to the given sink.
func NewMonitor(sink *DispatcherSink) *Monitor {
	return &Monitor{
		id:   uuid.New(),
		sink: sink,
	}
}

// newInternalMonitor creates the sink's own monitor; its events carry
// TagInternal so handlers and tests can tell them from producer traffic.
func newInternalMonitor(sink *DispatcherSink) *Monitor {
	return &Monitor{
		id:       uuid.New(),
		sink:     sink,
		baseTags: TagInternal,
	}
}

// ID returns the stable identifier of this producer.
func (m *Monitor) ID() uuid.UUID {
	return m.id
}

// nextLogTime advances the monitor clock. The returned next is strictly
// greater than every time previously handed out by this monitor.
func (m *Monitor) nextLogTime() (prev, next time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev = m.prev
	next = time.Now().UTC()
	if !next.After(m.prev) {
		next = m.prev.Add(100 * time.Nanosecond)
	}
	m.prev = next
	return prev, next
}

// Log emits an event with explicit level, tags and exception data.
// Ownership of the event transfers to the sink on successful submission;
// on failure the event is released here.
func (m *Monitor) Log(level int64, tags TagSet, text, exception string) {
	if m.sink == nil {
		return
	}
	prev, next := m.nextLogTime()
	e := acquireEvent(m.id, next, prev, level, tags|m.baseTags, text, exception)
	if !m.sink.Submit(e) {
		e.Release()
	}
}

// Debug logs a message at debug level.
func (m *Monitor) Debug(args ...any) {
	m.Log(LevelDebug, TagNone, string(formatter.FormatArgs(args...)), "")
}

// Info logs a message at info level.
func (m *Monitor) Info(args ...any) {
	m.Log(LevelInfo, TagNone, string(formatter.FormatArgs(args...)), "")
}

// Warn logs a message at warning level.
func (m *Monitor) Warn(args ...any) {
	m.Log(LevelWarn, TagNone, string(formatter.FormatArgs(args...)), "")
}

// Error logs a message at error level.
func (m *Monitor) Error(args ...any) {
	m.Log(LevelError, TagNone, string(formatter.FormatArgs(args...)), "")
}

// SendIdentityUpdate submits an identity-card fragment. The payload must be
// a JSON object of string keys and values; the sink merges it into the
// process identity card instead of dispatching it to handlers.
func (m *Monitor) SendIdentityUpdate(payload string) {
	m.Log(LevelInfo, TagIdentityUpdate, payload, "")
}
