package ember

import (
	"time"
)

// Handler is an output destination driven by the sink worker. All methods
// are invoked from the worker only; implementations need no internal
// locking against the sink. A handler that returns an error (or panics)
// from Handle, OnTimer or ApplyConfiguration is considered faulty: it is
// deactivated and removed after the current item.
type Handler interface {
	// Activate prepares the handler. On error the handler is not added.
	Activate(m *Monitor) error

	// Deactivate releases the handler's resources.
	Deactivate(m *Monitor) error

	// Handle processes one event. The event is only valid for the duration
	// of the call; the sink releases it afterwards.
	Handle(m *Monitor, e Event) error

	// OnTimer runs periodic maintenance. The duration is the configured
	// timer period of the sink.
	OnTimer(m *Monitor, period time.Duration) error

	// ApplyConfiguration returns true when the configuration targets this
	// handler and has been applied in place. The reconciler uses this as
	// its matching predicate.
	ApplyConfiguration(m *Monitor, cfg HandlerConfig) (bool, error)
}

// HandlerConfig describes one handler instance. Concrete types live with
// their handlers; the sink treats configurations as opaque beyond Kind and
// Validate.
type HandlerConfig interface {
	Kind() string
	Validate() error
}

// HandlerFactory instantiates a handler for a configuration no existing
// handler claimed. The service registry carries cross-cutting services,
// at minimum the process identity card.
type HandlerFactory func(cfg HandlerConfig, services *ServiceRegistry) (Handler, error)

// ServiceRegistry is the container handed to handler factories.
type ServiceRegistry struct {
	Identity *IdentityCard
	services map[string]any
}

// NewServiceRegistry creates a registry around the given identity card.
func NewServiceRegistry(identity *IdentityCard) *ServiceRegistry {
	return &ServiceRegistry{
		Identity: identity,
		services: make(map[string]any),
	}
}

// Add registers a named service. Later additions replace earlier ones.
func (r *ServiceRegistry) Add(name string, svc any) {
	r.services[name] = svc
}

// Get returns a named service or nil.
func (r *ServiceRegistry) Get(name string) any {
	return r.services[name]
}
