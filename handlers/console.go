package handlers

import (
	"io"
	"os"
	"time"

	"github.com/emberlog/ember"
	"github.com/emberlog/ember/formatter"
)

// ConsoleConfig configures a console handler. Target selects the stream;
// one console handler exists per target, which is also its identity.
type ConsoleConfig struct {
	Target          string `toml:"target"` // "stdout" or "stderr"
	Format          string `toml:"format"`
	TimestampFormat string `toml:"timestamp_format"`
}

// Kind implements ember.HandlerConfig.
func (c *ConsoleConfig) Kind() string { return KindConsole }

// Validate implements ember.HandlerConfig.
func (c *ConsoleConfig) Validate() error {
	if c.Target != "" && c.Target != "stdout" && c.Target != "stderr" {
		return errorf("invalid console target: '%s' (use stdout or stderr)", c.Target)
	}
	if c.Format != "" && c.Format != "txt" && c.Format != "json" {
		return errorf("invalid format: '%s' (use txt or json)", c.Format)
	}
	return nil
}

func (c *ConsoleConfig) withDefaults() *ConsoleConfig {
	out := *c
	if out.Target == "" {
		out.Target = "stdout"
	}
	if out.Format == "" {
		out.Format = "txt"
	}
	return &out
}

// ConsoleHandler writes formatted entries to stdout or stderr.
type ConsoleHandler struct {
	cfg *ConsoleConfig
	out io.Writer
	fm  *formatter.Formatter
}

func newConsoleHandler(cfg ember.HandlerConfig, _ *ember.ServiceRegistry) (ember.Handler, error) {
	conCfg, ok := cfg.(*ConsoleConfig)
	if !ok {
		return nil, errorf("console handler requires *ConsoleConfig, got %T", cfg)
	}
	return NewConsoleHandler(conCfg)
}

// NewConsoleHandler creates the handler without activating it.
func NewConsoleHandler(cfg *ConsoleConfig) (*ConsoleHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConsoleHandler{cfg: cfg.withDefaults()}, nil
}

func (h *ConsoleHandler) Activate(_ *ember.Monitor) error {
	if h.cfg.Target == "stderr" {
		h.out = os.Stderr
	} else {
		h.out = os.Stdout
	}
	h.fm = formatter.New().Type(h.cfg.Format).TimestampFormat(h.cfg.TimestampFormat)
	return nil
}

func (h *ConsoleHandler) Deactivate(_ *ember.Monitor) error {
	h.out = nil
	return nil
}

func (h *ConsoleHandler) Handle(_ *ember.Monitor, e ember.Event) error {
	if h.out == nil {
		return errorf("console handler is not active")
	}
	entry := formatter.Entry{
		Time:      e.LogTime(),
		Level:     ember.LevelLabel(e.Level()),
		Monitor:   shortID(e.MonitorID()),
		Text:      e.Text(),
		Exception: e.ExceptionData(),
	}
	_, err := h.out.Write(h.fm.Format(entry))
	return err
}

func (h *ConsoleHandler) OnTimer(_ *ember.Monitor, _ time.Duration) error {
	return nil
}

// ApplyConfiguration claims console configurations with the same target.
func (h *ConsoleHandler) ApplyConfiguration(_ *ember.Monitor, cfg ember.HandlerConfig) (bool, error) {
	next, ok := cfg.(*ConsoleConfig)
	if !ok {
		return false, nil
	}
	next = next.withDefaults()
	if next.Target != h.cfg.Target {
		return false, nil
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	if next.Format != h.cfg.Format || next.TimestampFormat != h.cfg.TimestampFormat {
		h.fm = formatter.New().Type(next.Format).TimestampFormat(next.TimestampFormat)
	}
	h.cfg = next
	return true, nil
}
