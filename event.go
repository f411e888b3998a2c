package ember

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is the contract the sink requires from a log entry. Entries are
// created by producer monitors, borrowed by the sink for a single dispatch,
// and must be released exactly once afterwards.
type Event interface {
	MonitorID() uuid.UUID
	LogTime() time.Time
	PreviousLogTime() time.Time
	Level() int64
	Tags() TagSet
	Text() string
	ExceptionData() string
	Release()
}

// LogEvent is the pooled concrete event produced by Monitor.
type LogEvent struct {
	monitorID uuid.UUID
	logTime   time.Time
	prevTime  time.Time
	level     int64
	tags      TagSet
	text      string
	exception string
	released  atomic.Bool
}

var eventPool = sync.Pool{
	New: func() any { return &LogEvent{} },
}

// acquireEvent fetches an event from the pool and fills it.
func acquireEvent(monitorID uuid.UUID, logTime, prevTime time.Time, level int64, tags TagSet, text, exception string) *LogEvent {
	e := eventPool.Get().(*LogEvent)
	e.monitorID = monitorID
	e.logTime = logTime
	e.prevTime = prevTime
	e.level = level
	e.tags = tags
	e.text = text
	e.exception = exception
	e.released.Store(false)
	return e
}

func (e *LogEvent) MonitorID() uuid.UUID        { return e.monitorID }
func (e *LogEvent) LogTime() time.Time          { return e.logTime }
func (e *LogEvent) PreviousLogTime() time.Time  { return e.prevTime }
func (e *LogEvent) Level() int64                { return e.level }
func (e *LogEvent) Tags() TagSet                { return e.tags }
func (e *LogEvent) Text() string                { return e.text }
func (e *LogEvent) ExceptionData() string       { return e.exception }

// Release returns the event to the pool. A double release is ignored; the
// first caller wins.
func (e *LogEvent) Release() {
	if !e.released.CompareAndSwap(false, true) {
		return
	}
	e.monitorID = uuid.UUID{}
	e.logTime = time.Time{}
	e.prevTime = time.Time{}
	e.level = 0
	e.tags = TagNone
	e.text = ""
	e.exception = ""
	eventPool.Put(e)
}
