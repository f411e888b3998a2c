package ember

import (
	"time"
)

// SinkConfig is one complete configuration of the dispatcher sink: the
// top-level filter, the timer cadence, and the ordered list of handler
// configurations. Configurations are immutable once submitted; the worker
// applies them between items.
type SinkConfig struct {
	// MinimalLevel filters events at submission. Events below it are
	// released without entering the queue.
	MinimalLevel int64 `toml:"minimal_level"`

	// TimerDuration is the period of the handlers' OnTimer fan-out.
	TimerDuration time.Duration `toml:"timer_duration"`

	// ExternalTimerDuration is the period of the injected external timer
	// callback. Zero disables it.
	ExternalTimerDuration time.Duration `toml:"external_timer_duration"`

	// TrackUnhandledPanics controls whether the worker logs handler faults
	// (returned errors and recovered panics) with the fatal level.
	TrackUnhandledPanics bool `toml:"track_unhandled_panics"`

	// StaticGates is an opaque gate specification recorded on the identity
	// card for diagnostics tooling.
	StaticGates string `toml:"static_gates"`

	// Handlers is the ordered list of handler configurations the
	// reconciler matches against the live handler set.
	Handlers []HandlerConfig `toml:"-"`
}

// defaultSinkConfig is the single source for configurable default values.
var defaultSinkConfig = SinkConfig{
	MinimalLevel:          LevelDebug,
	TimerDuration:         500 * time.Millisecond,
	ExternalTimerDuration: 0,
	TrackUnhandledPanics:  true,
	StaticGates:           "",
}

// DefaultSinkConfig returns a copy of the default configuration.
func DefaultSinkConfig() *SinkConfig {
	copied := defaultSinkConfig
	return &copied
}

// Validate checks the configuration before submission.
func (c *SinkConfig) Validate() error {
	if c.TimerDuration <= 0 {
		return fmtErrorf("timer_duration must be positive: %v", c.TimerDuration)
	}
	if c.ExternalTimerDuration < 0 {
		return fmtErrorf("external_timer_duration cannot be negative: %v", c.ExternalTimerDuration)
	}
	for i, hc := range c.Handlers {
		if hc == nil {
			return fmtErrorf("handler configuration %d is nil", i)
		}
		if err := hc.Validate(); err != nil {
			return fmtErrorf("handler configuration %d (%s): %w", i, hc.Kind(), err)
		}
	}
	return nil
}

// Clone creates a copy of the configuration. Handler configurations are
// shared; they are treated as immutable once submitted.
func (c *SinkConfig) Clone() *SinkConfig {
	copied := *c
	copied.Handlers = make([]HandlerConfig, len(c.Handlers))
	copy(copied.Handlers, c.Handlers)
	return &copied
}
