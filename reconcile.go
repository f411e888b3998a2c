package ember

// applyConfiguration applies one configuration on the worker: filter and
// timer changes take effect immediately, then the handler list is
// reconciled against the configuration's ordered handler set.
func (s *DispatcherSink) applyConfiguration(cfg *SinkConfig) {
	s.state.MinimalLevel.Store(cfg.MinimalLevel)
	s.state.TimerDuration.Store(int64(cfg.TimerDuration))
	s.externalTimerPeriod = cfg.ExternalTimerDuration
	s.trackPanics = cfg.TrackUnhandledPanics
	if cfg.StaticGates != "" {
		s.identity.Merge(map[string]string{"static_gates": cfg.StaticGates})
	}

	s.reconcileHandlers(cfg.Handlers)
	s.state.TotalConfigsApplied.Add(1)
}

// reconcileHandlers matches incoming handler configurations against the
// live handler list, preserving handlers whose configuration still applies
// to them so their output continues without interruption.
//
// Existing handlers claimed by a configuration survive; handlers no
// configuration claims are deactivated; configurations no handler claims
// produce new handlers through the factory. The resulting order follows
// the configuration: kept handlers first in match order, new handlers
// appended.
func (s *DispatcherSink) reconcileHandlers(configs []HandlerConfig) {
	live := make([]Handler, len(s.handlers))
	copy(live, s.handlers)

	var keep []Handler
	var unclaimed []HandlerConfig

	for _, cfg := range configs {
		cfg := cfg
		matched := false
		for i := 0; i < len(live); i++ {
			h := live[i]
			var applied bool
			err := s.guard(func() error {
				var applyErr error
				applied, applyErr = h.ApplyConfiguration(s.monitor, cfg)
				return applyErr
			})
			if err != nil {
				// A handler that faults while probing a configuration is
				// compromised: drop it from the live list entirely
				live = append(live[:i], live[i+1:]...)
				i--
				s.dropCompromised(h, err)
				continue
			}
			if applied {
				keep = append(keep, h)
				live = append(live[:i], live[i+1:]...)
				matched = true
				break
			}
		}
		if !matched {
			unclaimed = append(unclaimed, cfg)
		}
	}

	// Handlers no configuration claimed are retired
	for _, h := range live {
		h := h
		if err := s.guard(func() error { return h.Deactivate(s.monitor) }); err != nil {
			s.internalLog("handler deactivation failed during reconfiguration: %v", err)
		}
	}

	s.handlers = keep

	for _, cfg := range unclaimed {
		h, err := s.factory(cfg, s.services)
		if err != nil {
			s.internalLog("handler creation failed for %q: %v", cfg.Kind(), err)
			s.monitor.Error("handler creation failed", "kind", cfg.Kind(), "error", err)
			continue
		}
		if err := s.guard(func() error { return h.Activate(s.monitor) }); err != nil {
			s.internalLog("handler activation failed for %q: %v", cfg.Kind(), err)
			s.monitor.Error("handler activation failed", "kind", cfg.Kind(), "error", err)
			continue
		}
		s.handlers = append(s.handlers, h)
	}

	s.handlerCount.Store(int32(len(s.handlers)))
}

// dropCompromised deactivates a handler that faulted during configuration
// probing and records the fault.
func (s *DispatcherSink) dropCompromised(h Handler, cause error) {
	s.internalLog("handler compromised during reconfiguration, removing: %v", cause)
	if err := s.guard(func() error { return h.Deactivate(s.monitor) }); err != nil {
		s.internalLog("compromised handler deactivation failed: %v", err)
	}
	s.state.TotalFaulted.Add(1)
	if s.trackPanics {
		s.monitor.Log(LevelFatal, TagInternal, "handler removed after configuration fault: "+cause.Error(), "")
	}
}
