// Package compat adapts third-party framework logging interfaces onto an
// ember monitor, so servers built on gnet or fasthttp log through the
// dispatcher like any other producer.
package compat

import (
	"fmt"
	"os"

	"github.com/emberlog/ember"
)

// GnetAdapter wraps an ember.Monitor to implement gnet's logging.Logger
// interface.
type GnetAdapter struct {
	monitor      *ember.Monitor
	fatalHandler func(msg string) // Customizable fatal behavior
}

// NewGnetAdapter creates a new gnet-compatible logger adapter.
func NewGnetAdapter(monitor *ember.Monitor, opts ...GnetOption) *GnetAdapter {
	adapter := &GnetAdapter{
		monitor: monitor,
		fatalHandler: func(msg string) {
			os.Exit(1) // Default behavior matches gnet expectations
		},
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// GnetOption allows customizing adapter behavior.
type GnetOption func(*GnetAdapter)

// WithFatalHandler sets a custom fatal handler.
func WithFatalHandler(handler func(string)) GnetOption {
	return func(a *GnetAdapter) {
		a.fatalHandler = handler
	}
}

// Debugf logs at debug level with printf-style formatting.
func (a *GnetAdapter) Debugf(format string, args ...any) {
	a.monitor.Log(ember.LevelDebug, ember.TagNone, "gnet: "+fmt.Sprintf(format, args...), "")
}

// Infof logs at info level with printf-style formatting.
func (a *GnetAdapter) Infof(format string, args ...any) {
	a.monitor.Log(ember.LevelInfo, ember.TagNone, "gnet: "+fmt.Sprintf(format, args...), "")
}

// Warnf logs at warn level with printf-style formatting.
func (a *GnetAdapter) Warnf(format string, args ...any) {
	a.monitor.Log(ember.LevelWarn, ember.TagNone, "gnet: "+fmt.Sprintf(format, args...), "")
}

// Errorf logs at error level with printf-style formatting.
func (a *GnetAdapter) Errorf(format string, args ...any) {
	a.monitor.Log(ember.LevelError, ember.TagNone, "gnet: "+fmt.Sprintf(format, args...), "")
}

// Fatalf logs at fatal level and triggers the fatal handler.
func (a *GnetAdapter) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.monitor.Log(ember.LevelFatal, ember.TagNone, "gnet: "+msg, "")

	if a.fatalHandler != nil {
		a.fatalHandler(msg)
	}
}
