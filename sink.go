package ember

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DispatcherSink owns the single worker that consumes queue messages,
// manages the live handler list and applies configurations. Producers
// interact with it only through Submit, the wait barriers and the
// configuration slot; every handler mutation happens on the worker.
type DispatcherSink struct {
	q        *queue
	factory  HandlerFactory
	services *ServiceRegistry
	identity *IdentityCard
	monitor  *Monitor

	// pendingConfigs is the atomically swappable slot of configurations
	// not yet applied. Producers append by CAS-replacing the slice; the
	// worker swaps it for nil and applies every entry in order.
	pendingConfigs atomic.Pointer[[]*SinkConfig]

	// Worker-owned; never touched off the worker goroutine
	handlers            []Handler
	trackPanics         bool
	externalTimerPeriod time.Duration

	handlerCount atomic.Int32
	state        sinkState

	externalTimer func()

	stopOnce sync.Once
	stopping chan struct{}
	done     chan struct{}

	stderrFallback bool
}

// Option customizes a DispatcherSink at construction.
type Option func(*DispatcherSink)

// WithExternalTimer installs the callback invoked at the configured
// external timer cadence, on the worker.
func WithExternalTimer(fn func()) Option {
	return func(s *DispatcherSink) {
		s.externalTimer = fn
	}
}

// WithStderrFallback mirrors internal sink faults to stderr. Useful in
// tests and while no handler is active yet.
func WithStderrFallback(enabled bool) Option {
	return func(s *DispatcherSink) {
		s.stderrFallback = enabled
	}
}

// WithService registers an additional service handed to handler factories.
func WithService(name string, svc any) Option {
	return func(s *DispatcherSink) {
		s.services.Add(name, svc)
	}
}

// NewDispatcherSink creates a sink around the injected handler factory.
// The sink is inert until Start; the worker then waits for the first
// configuration before dispatching.
func NewDispatcherSink(factory HandlerFactory, opts ...Option) *DispatcherSink {
	identity := NewIdentityCard()
	s := &DispatcherSink{
		q:        newQueue(),
		factory:  factory,
		identity: identity,
		services: NewServiceRegistry(identity),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.monitor = newInternalMonitor(s)
	s.state.MinimalLevel.Store(defaultSinkConfig.MinimalLevel)
	s.state.TimerDuration.Store(int64(defaultSinkConfig.TimerDuration))
	s.state.WorkerExited.Store(true)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Monitor returns the sink's own monitor. Events emitted through it carry
// TagInternal and travel the same queue as producer events.
func (s *DispatcherSink) Monitor() *Monitor {
	return s.monitor
}

// Identity returns the process identity card.
func (s *DispatcherSink) Identity() *IdentityCard {
	return s.identity
}

// Stopping returns the channel closed when shutdown begins. Handlers can
// observe it through the monitor's sink.
func (s *DispatcherSink) Stopping() <-chan struct{} {
	return s.stopping
}

// Done returns the channel closed when the worker has exited.
func (s *DispatcherSink) Done() <-chan struct{} {
	return s.done
}

// Start launches the worker. Safe to call once; subsequent calls are
// no-ops until the sink has been stopped, after which a sink cannot be
// restarted.
func (s *DispatcherSink) Start() error {
	if s.factory == nil {
		return fmtErrorf("dispatcher sink requires a handler factory")
	}
	if s.state.StopCalled.Load() {
		return fmtErrorf("dispatcher sink cannot be restarted after stop")
	}
	if !s.state.Started.CompareAndSwap(false, true) {
		return nil
	}

	s.state.StartTime.Store(time.Now())
	s.state.WorkerExited.Store(false)
	go s.run()
	return nil
}

// ApplyConfiguration validates cfg and appends it to the pending slot.
// The worker picks it up between items; the first configuration also
// unblocks the startup poll.
func (s *DispatcherSink) ApplyConfiguration(cfg *SinkConfig) error {
	if cfg == nil {
		return fmtErrorf("configuration cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmtErrorf("invalid configuration: %w", err)
	}

	clone := cfg.Clone()
	for {
		old := s.pendingConfigs.Load()
		var next []*SinkConfig
		if old != nil {
			next = make([]*SinkConfig, len(*old), len(*old)+1)
			copy(next, *old)
		}
		next = append(next, clone)
		if s.pendingConfigs.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// Submit hands an event to the sink. Ownership transfers on true; on false
// the caller must release the event. Events below the minimal level are
// released here and reported as accepted.
func (s *DispatcherSink) Submit(e Event) bool {
	if e == nil {
		return false
	}
	if !e.Tags().Overlaps(TagClose|TagIdentityUpdate|TagIdentityFull) && e.Level() < s.state.MinimalLevel.Load() {
		s.state.TotalFiltered.Add(1)
		e.Release()
		return true
	}
	if !s.q.tryPush(queueMessage{kind: msgEvent, event: e}) {
		s.state.TotalRejected.Add(1)
		return false
	}
	s.state.TotalSubmitted.Add(1)
	return true
}

// AddHandler asks the worker to activate h and append it to the live list.
// Returns false once the sink no longer accepts messages.
func (s *DispatcherSink) AddHandler(h Handler) bool {
	if h == nil {
		return false
	}
	return s.q.tryPush(queueMessage{kind: msgAddHandler, handler: h})
}

// RemoveHandler asks the worker to deactivate h and drop it from the live
// list.
func (s *DispatcherSink) RemoveHandler(h Handler) bool {
	if h == nil {
		return false
	}
	return s.q.tryPush(queueMessage{kind: msgRemoveHandler, handler: h})
}

// SubmitAction enqueues an operation to run on the worker against the
// handler list. The returned channel yields the action's error (nil on
// success) and is closed afterwards.
func (s *DispatcherSink) SubmitAction(a HandlerListAction) (<-chan error, bool) {
	if a == nil {
		return nil, false
	}
	done := make(chan error, 1)
	if !s.q.tryPush(queueMessage{kind: msgAction, action: a, done: done}) {
		return nil, false
	}
	return done, true
}

// AsyncWait enqueues a barrier and returns a channel completed when the
// worker reaches it. All events enqueued by the caller before AsyncWait
// have been dispatched by then.
func (s *DispatcherSink) AsyncWait() (<-chan error, bool) {
	done := make(chan error, 1)
	if !s.q.tryPush(queueMessage{kind: msgAsyncWait, done: done}) {
		return nil, false
	}
	return done, true
}

// SyncWait blocks until the worker reaches the barrier or the timeout
// elapses.
func (s *DispatcherSink) SyncWait(timeout time.Duration) error {
	signal := make(chan struct{})
	if !s.q.tryPush(queueMessage{kind: msgSyncWait, signal: signal}) {
		return fmtErrorf("sink is no longer accepting messages")
	}
	select {
	case <-signal:
		return nil
	case <-time.After(timeout):
		return fmtErrorf("timeout waiting for sync barrier (%v)", timeout)
	}
}

// Stop shuts the sink down: it writes the close sentinel, completes the
// queue writer and waits for the worker to drain. Idempotent; later calls
// only wait.
func (s *DispatcherSink) Stop(timeout ...time.Duration) error {
	s.stopOnce.Do(func() {
		s.state.StopCalled.Store(true)
		close(s.stopping)

		prev, next := s.monitor.nextLogTime()
		sentinel := acquireEvent(s.monitor.ID(), next, prev, LevelInfo, TagClose|TagInternal, "Stopped.", "")
		if !s.q.tryPush(queueMessage{kind: msgClose, event: sentinel}) {
			sentinel.Release()
		}
		s.q.complete()
	})

	if !s.state.Started.Load() {
		s.state.WorkerExited.Store(true)
		return nil
	}

	effective := defaultStopTimeout
	if len(timeout) > 0 {
		effective = timeout[0]
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(effective):
		return fmtErrorf("worker did not exit within timeout (%v)", effective)
	}
}

// internalLog writes sink diagnostics to stderr when the fallback is
// enabled. Faults that should reach the handlers are additionally emitted
// as internal events by the caller.
func (s *DispatcherSink) internalLog(format string, args ...any) {
	if !s.stderrFallback {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	fmt.Fprintf(os.Stderr, "ember: %s\n", msg)
}

const defaultStopTimeout = 2 * time.Second
