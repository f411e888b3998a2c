package ember

import (
	"time"
)

// Builder provides a fluent API for assembling a dispatcher sink and its
// first configuration.
type Builder struct {
	cfg     *SinkConfig
	factory HandlerFactory
	opts    []Option
	err     error // Accumulate errors for deferred handling
}

// NewBuilder creates a new builder with default configuration values.
func NewBuilder() *Builder {
	return &Builder{
		cfg: DefaultSinkConfig(),
	}
}

// Factory sets the handler factory.
func (b *Builder) Factory(factory HandlerFactory) *Builder {
	b.factory = factory
	return b
}

// MinimalLevel sets the top-level filter.
func (b *Builder) MinimalLevel(level int64) *Builder {
	b.cfg.MinimalLevel = level
	return b
}

// MinimalLevelString sets the top-level filter from a name.
func (b *Builder) MinimalLevelString(level string) *Builder {
	if b.err != nil {
		return b
	}
	levelVal, err := Level(level)
	if err != nil {
		b.err = err
		return b
	}
	b.cfg.MinimalLevel = levelVal
	return b
}

// TimerDuration sets the OnTimer cadence.
func (b *Builder) TimerDuration(d time.Duration) *Builder {
	b.cfg.TimerDuration = d
	return b
}

// ExternalTimer installs the external timer callback and its cadence.
func (b *Builder) ExternalTimer(d time.Duration, fn func()) *Builder {
	b.cfg.ExternalTimerDuration = d
	b.opts = append(b.opts, WithExternalTimer(fn))
	return b
}

// TrackUnhandledPanics toggles fatal logging of handler faults (returned
// errors and recovered panics).
func (b *Builder) TrackUnhandledPanics(enabled bool) *Builder {
	b.cfg.TrackUnhandledPanics = enabled
	return b
}

// StaticGates records the gate specification on the identity card.
func (b *Builder) StaticGates(gates string) *Builder {
	b.cfg.StaticGates = gates
	return b
}

// Handler appends a handler configuration.
func (b *Builder) Handler(cfg HandlerConfig) *Builder {
	b.cfg.Handlers = append(b.cfg.Handlers, cfg)
	return b
}

// StderrFallback mirrors internal sink faults to stderr.
func (b *Builder) StderrFallback(enabled bool) *Builder {
	b.opts = append(b.opts, WithStderrFallback(enabled))
	return b
}

// Service registers an additional factory service.
func (b *Builder) Service(name string, svc any) *Builder {
	b.opts = append(b.opts, WithService(name, svc))
	return b
}

// Build creates the sink, submits the configuration and starts the worker.
func (b *Builder) Build() (*DispatcherSink, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.factory == nil {
		return nil, fmtErrorf("builder requires a handler factory")
	}

	sink := NewDispatcherSink(b.factory, b.opts...)
	if err := sink.ApplyConfiguration(b.cfg); err != nil {
		return nil, err
	}
	if err := sink.Start(); err != nil {
		return nil, err
	}
	return sink, nil
}
