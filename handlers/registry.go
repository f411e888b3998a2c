// Package handlers provides the built-in output handlers and the explicit
// registry the dispatcher's factory resolves handler kinds through.
package handlers

import (
	"sync"

	"github.com/emberlog/ember"
)

// Factory instantiates a handler for one configuration.
type Factory func(cfg ember.HandlerConfig, services *ember.ServiceRegistry) (ember.Handler, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register binds a handler kind to its factory. Later registrations
// replace earlier ones, which lets applications override built-ins.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Create resolves cfg.Kind() through the registry. It satisfies
// ember.HandlerFactory and is the factory normally injected into the sink.
func Create(cfg ember.HandlerConfig, services *ember.ServiceRegistry) (ember.Handler, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Kind()]
	registryMu.RUnlock()
	if !ok {
		return nil, errorf("unknown handler kind '%s'", cfg.Kind())
	}
	return factory(cfg, services)
}

func init() {
	Register(KindTextFile, newTextFileHandler)
	Register(KindBinaryFile, newBinaryFileHandler)
	Register(KindConsole, newConsoleHandler)
	Register(KindMetrics, newMetricsHandler)
}
