package handlers

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/emberlog/ember"
)

// errorf wrapper
func errorf(format string, args ...any) error {
	if !strings.HasPrefix(format, "handlers: ") {
		format = "handlers: " + format
	}
	return fmt.Errorf(format, args...)
}

// monitorLogger routes rotation-engine diagnostics into the sink through
// the worker's monitor. The events travel the queue like any others, so
// engine warnings end up in the very logs the engine writes.
type monitorLogger struct {
	m *ember.Monitor
}

func (l monitorLogger) Infof(format string, args ...any) {
	if l.m != nil {
		l.m.Info(fmt.Sprintf(format, args...))
	}
}

func (l monitorLogger) Warnf(format string, args ...any) {
	if l.m != nil {
		l.m.Warn(fmt.Sprintf(format, args...))
	}
}

func (l monitorLogger) Errorf(format string, args ...any) {
	if l.m != nil {
		l.m.Error(fmt.Sprintf(format, args...))
	}
}

// shortID renders the leading bytes of a monitor id for log lines.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
