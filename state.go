package ember

import (
	"sync/atomic"
	"time"
)

// sinkState encapsulates the runtime state of the dispatcher sink.
type sinkState struct {
	Started      atomic.Bool
	StopCalled   atomic.Bool
	WorkerExited atomic.Bool
	Draining     atomic.Bool

	// Live values applied by the worker from configurations
	MinimalLevel  atomic.Int64
	TimerDuration atomic.Int64 // nanoseconds

	// Counters, mirrored into Stats snapshots
	TotalSubmitted    atomic.Uint64
	TotalFiltered     atomic.Uint64
	TotalRejected     atomic.Uint64 // submissions after writer completion
	TotalDispatched   atomic.Uint64
	TotalReleased     atomic.Uint64
	TotalFaulted      atomic.Uint64 // handlers removed for faulting
	TotalConfigsApplied atomic.Uint64

	StartTime atomic.Value // time.Time
}

// Stats is a point-in-time snapshot of the sink counters.
type Stats struct {
	Uptime         time.Duration
	QueueLength    int
	HandlerCount   int
	Submitted      uint64
	Filtered       uint64
	Rejected       uint64
	Dispatched     uint64
	Released       uint64
	FaultedHandlers uint64
	ConfigsApplied uint64
}

// Stats returns a snapshot of the sink counters. HandlerCount is the value
// last published by the worker, not a live read of the worker-owned list.
func (s *DispatcherSink) Stats() Stats {
	var uptime time.Duration
	if v, ok := s.state.StartTime.Load().(time.Time); ok && !v.IsZero() {
		uptime = time.Since(v)
	}
	return Stats{
		Uptime:          uptime,
		QueueLength:     s.q.length(),
		HandlerCount:    int(s.handlerCount.Load()),
		Submitted:       s.state.TotalSubmitted.Load(),
		Filtered:        s.state.TotalFiltered.Load(),
		Rejected:        s.state.TotalRejected.Load(),
		Dispatched:      s.state.TotalDispatched.Load(),
		Released:        s.state.TotalReleased.Load(),
		FaultedHandlers: s.state.TotalFaulted.Load(),
		ConfigsApplied:  s.state.TotalConfigsApplied.Load(),
	}
}
