package handlers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/emberlog/ember"
)

// MetricsConfig configures the prometheus handler. Namespace is the
// metric prefix and the handler identity; Registerer defaults to the
// process-wide default registry.
type MetricsConfig struct {
	Namespace string `toml:"namespace"`

	Registerer prometheus.Registerer `toml:"-"`
}

// Kind implements ember.HandlerConfig.
func (c *MetricsConfig) Kind() string { return KindMetrics }

// Validate implements ember.HandlerConfig.
func (c *MetricsConfig) Validate() error {
	return nil
}

func (c *MetricsConfig) withDefaults() *MetricsConfig {
	out := *c
	if out.Namespace == "" {
		out.Namespace = "ember"
	}
	if out.Registerer == nil {
		out.Registerer = prometheus.DefaultRegisterer
	}
	return &out
}

// MetricsHandler counts dispatched events per level plus timer activity.
// It produces no log output itself; it rides the handler list so its
// counters observe exactly what the other handlers receive.
type MetricsHandler struct {
	cfg *MetricsConfig

	eventsTotal *prometheus.CounterVec
	timerTicks  prometheus.Counter
	registered  bool
}

func newMetricsHandler(cfg ember.HandlerConfig, _ *ember.ServiceRegistry) (ember.Handler, error) {
	metCfg, ok := cfg.(*MetricsConfig)
	if !ok {
		return nil, errorf("metrics handler requires *MetricsConfig, got %T", cfg)
	}
	return NewMetricsHandler(metCfg)
}

// NewMetricsHandler creates the handler without activating it.
func NewMetricsHandler(cfg *MetricsConfig) (*MetricsHandler, error) {
	cfg = cfg.withDefaults()
	h := &MetricsHandler{cfg: cfg}
	h.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "events_dispatched_total",
		Help:      "Log events dispatched to the handler list, by level.",
	}, []string{"level"})
	h.timerTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "timer_ticks_total",
		Help:      "Periodic maintenance ticks observed by the handlers.",
	})
	return h, nil
}

func (h *MetricsHandler) Activate(_ *ember.Monitor) error {
	if h.registered {
		return nil
	}
	if err := h.cfg.Registerer.Register(h.eventsTotal); err != nil {
		return errorf("cannot register event counter: %w", err)
	}
	if err := h.cfg.Registerer.Register(h.timerTicks); err != nil {
		h.cfg.Registerer.Unregister(h.eventsTotal)
		return errorf("cannot register tick counter: %w", err)
	}
	h.registered = true
	return nil
}

func (h *MetricsHandler) Deactivate(_ *ember.Monitor) error {
	if !h.registered {
		return nil
	}
	h.cfg.Registerer.Unregister(h.eventsTotal)
	h.cfg.Registerer.Unregister(h.timerTicks)
	h.registered = false
	return nil
}

func (h *MetricsHandler) Handle(_ *ember.Monitor, e ember.Event) error {
	h.eventsTotal.WithLabelValues(ember.LevelLabel(e.Level())).Inc()
	return nil
}

func (h *MetricsHandler) OnTimer(_ *ember.Monitor, _ time.Duration) error {
	h.timerTicks.Inc()
	return nil
}

// ApplyConfiguration claims metrics configurations with the same
// namespace.
func (h *MetricsHandler) ApplyConfiguration(_ *ember.Monitor, cfg ember.HandlerConfig) (bool, error) {
	next, ok := cfg.(*MetricsConfig)
	if !ok {
		return false, nil
	}
	next = next.withDefaults()
	if next.Namespace != h.cfg.Namespace {
		return false, nil
	}
	return true, nil
}
