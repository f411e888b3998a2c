package ember

import (
	"time"
)

// run is the worker goroutine. It is the sole mutator of the handler list
// and of all handler state; producers only ever touch the queue and the
// pending-configuration slot.
func (s *DispatcherSink) run() {
	defer func() {
		s.state.WorkerExited.Store(true)
		close(s.done)
	}()

	// Startup: wait for the first configuration unless shutdown wins
	s.awaitFirstConfig()
	s.drainPendingConfigs()

	// Broadcast the full identity card; events producers queued before
	// this point are dispatched ahead of it
	s.monitor.Log(LevelInfo, TagIdentityFull|TagInternal, s.identity.FullText(), "")

	timerDuration := time.Duration(s.state.TimerDuration.Load())
	nextTick := time.Now().Add(timerDuration)
	var nextExternalTick time.Time

	awakerStop := make(chan struct{})
	go s.runAwaker(awakerStop)
	defer close(awakerStop)

	for {
		msg, ok := s.q.pop()
		if !ok {
			break
		}

		s.drainPendingConfigs()

		closing := msg.kind == msgClose
		s.dispatch(msg)
		if closing {
			break
		}

		if s.state.StopCalled.Load() {
			continue
		}
		now := time.Now()
		if now.Before(nextTick) {
			continue
		}
		timerDuration = time.Duration(s.state.TimerDuration.Load())
		s.fanOutTimer(timerDuration)
		nextTick = now.Add(timerDuration)

		if s.externalTimer != nil && s.externalTimerPeriod > 0 {
			if nextExternalTick.IsZero() {
				nextExternalTick = now.Add(s.externalTimerPeriod)
			} else if !now.Before(nextExternalTick) {
				s.externalTimer()
				nextExternalTick = now.Add(s.externalTimerPeriod)
			}
		}
	}

	s.drainRemaining()
	s.deactivateAll()
}

// awaitFirstConfig spin-polls the pending-configuration slot with short
// sleeps until at least one configuration has been delivered or shutdown
// has begun.
func (s *DispatcherSink) awaitFirstConfig() {
	for s.pendingConfigs.Load() == nil {
		select {
		case <-s.stopping:
			return
		default:
		}
		time.Sleep(configPollPeriod)
	}
}

// runAwaker feeds the periodic tick that re-enters the timer branch while
// the queue is idle. It exits once the queue stops accepting.
func (s *DispatcherSink) runAwaker(stop <-chan struct{}) {
	ticker := time.NewTicker(awakerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.q.tryPush(queueMessage{kind: msgTick}) {
				return
			}
		}
	}
}

// drainPendingConfigs swaps the pending slot for empty and applies every
// configuration in order.
func (s *DispatcherSink) drainPendingConfigs() {
	configs := s.pendingConfigs.Swap(nil)
	if configs == nil {
		return
	}
	for _, cfg := range *configs {
		s.applyConfiguration(cfg)
	}
}

// dispatch routes one queue message.
func (s *DispatcherSink) dispatch(msg queueMessage) {
	switch msg.kind {
	case msgTick:
		// No event side effect; the periodic block runs after dispatch

	case msgEvent, msgClose:
		s.dispatchEvent(msg.event)

	case msgAddHandler:
		if err := s.guard(func() error { return msg.handler.Activate(s.monitor) }); err != nil {
			s.internalLog("handler activation failed: %v", err)
			s.monitor.Error("handler activation failed", "error", err)
			return
		}
		s.handlers = append(s.handlers, msg.handler)
		s.handlerCount.Store(int32(len(s.handlers)))

	case msgRemoveHandler:
		for i, h := range s.handlers {
			if h == msg.handler {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				s.handlerCount.Store(int32(len(s.handlers)))
				if err := s.guard(func() error { return h.Deactivate(s.monitor) }); err != nil {
					s.internalLog("handler deactivation failed: %v", err)
				}
				break
			}
		}

	case msgAction:
		err := s.guard(func() error {
			return msg.action.Run(s.monitor, handlerListView{handlers: s.handlers})
		})
		msg.done <- err
		close(msg.done)

	case msgAsyncWait:
		msg.done <- nil
		close(msg.done)

	case msgSyncWait:
		close(msg.signal)
	}
}

// dispatchEvent fans one event out to every active handler, handling the
// identity-card interception and the fault policy, then releases it.
func (s *DispatcherSink) dispatchEvent(e Event) {
	if e == nil {
		return
	}
	defer func() {
		e.Release()
		s.state.TotalReleased.Add(1)
	}()

	if e.Tags().Overlaps(TagIdentityUpdate) {
		fragment, err := decodeIdentityPayload(e.Text())
		if err != nil {
			s.internalLog("identity update dropped: %v", err)
			s.monitor.Error("identity update dropped", "error", err)
			return
		}
		if !s.identity.Merge(fragment) {
			return
		}
	}

	var faulty []int
	for i, h := range s.handlers {
		h := h
		if err := s.guard(func() error { return h.Handle(s.monitor, e) }); err != nil {
			s.internalLog("handler failed, removing: %v", err)
			faulty = append(faulty, i)
			if s.trackPanics {
				s.monitor.Log(LevelFatal, TagInternal, "handler removed after failure: "+err.Error(), "")
			}
		}
	}
	s.removeFaulty(faulty)
	s.state.TotalDispatched.Add(1)
}

// fanOutTimer invokes OnTimer on every handler and removes the ones that
// fault.
func (s *DispatcherSink) fanOutTimer(period time.Duration) {
	var faulty []int
	for i, h := range s.handlers {
		h := h
		if err := s.guard(func() error { return h.OnTimer(s.monitor, period) }); err != nil {
			s.internalLog("handler timer failed, removing: %v", err)
			faulty = append(faulty, i)
			if s.trackPanics {
				s.monitor.Log(LevelFatal, TagInternal, "handler removed after timer failure: "+err.Error(), "")
			}
		}
	}
	s.removeFaulty(faulty)
}

// removeFaulty deactivates and drops handlers by index. Indices must be
// ascending, as produced by the dispatch loops.
func (s *DispatcherSink) removeFaulty(indices []int) {
	if len(indices) == 0 {
		return
	}
	for n, idx := range indices {
		i := idx - n // earlier removals shift the tail left
		h := s.handlers[i]
		s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
		if err := s.guard(func() error { return h.Deactivate(s.monitor) }); err != nil {
			s.internalLog("faulty handler deactivation failed: %v", err)
		}
		s.state.TotalFaulted.Add(1)
	}
	s.handlerCount.Store(int32(len(s.handlers)))
}

// guard runs a handler operation, converting panics into errors so one
// handler cannot take the worker down.
func (s *DispatcherSink) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmtErrorf("handler panic: %v", r)
		}
	}()
	return fn()
}

// drainRemaining empties the queue after the close sentinel: events are
// released without handling, pending actions are cancelled, waits are
// signalled so no producer stays parked. Producers can still slip messages
// in between the sentinel write and the writer completion, so an empty
// queue only ends the drain once the writer is completed.
func (s *DispatcherSink) drainRemaining() {
	s.state.Draining.Store(true)
	for {
		msg, ok := s.q.tryPop()
		if !ok {
			if s.q.completed() {
				return
			}
			time.Sleep(configPollPeriod)
			continue
		}
		switch msg.kind {
		case msgEvent, msgClose:
			if msg.event != nil {
				msg.event.Release()
				s.state.TotalReleased.Add(1)
			}
		case msgAction:
			msg.done <- fmtErrorf("action cancelled: sink is shutting down")
			close(msg.done)
		case msgAsyncWait:
			msg.done <- nil
			close(msg.done)
		case msgSyncWait:
			close(msg.signal)
		}
	}
}

// deactivateAll tears down every remaining handler at the end of the
// worker's life.
func (s *DispatcherSink) deactivateAll() {
	for _, h := range s.handlers {
		h := h
		if err := s.guard(func() error { return h.Deactivate(s.monitor) }); err != nil {
			s.internalLog("handler deactivation failed during shutdown: %v", err)
		}
	}
	s.handlers = nil
	s.handlerCount.Store(0)
}
