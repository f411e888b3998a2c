package ember

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ApplyOverride applies string key-value overrides on top of a base
// configuration and submits the result. Each override is "key=value".
// Handler configurations are carried over from base unchanged.
//
// Example:
//
//	sink.ApplyOverride(cfg,
//	    "minimal_level=debug",
//	    "timer_duration_ms=250",
//	)
func (s *DispatcherSink) ApplyOverride(base *SinkConfig, overrides ...string) error {
	if base == nil {
		base = DefaultSinkConfig()
	}
	cfg := base.Clone()

	var errors []error

	for _, override := range overrides {
		key, value, err := parseKeyValue(override)
		if err != nil {
			errors = append(errors, err)
			continue
		}

		if err := applyConfigField(cfg, key, value); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return combineConfigErrors(errors)
	}

	return s.ApplyConfiguration(cfg)
}

// combineConfigErrors combines multiple configuration errors into a single error.
func combineConfigErrors(errors []error) error {
	if len(errors) == 0 {
		return nil
	}
	if len(errors) == 1 {
		return errors[0]
	}

	var sb strings.Builder
	sb.WriteString("ember: multiple configuration errors:")
	for i, err := range errors {
		errMsg := err.Error()
		// Remove "ember: " prefix from individual errors to avoid duplication
		if strings.HasPrefix(errMsg, "ember: ") {
			errMsg = errMsg[7:]
		}
		sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, errMsg))
	}
	return fmt.Errorf("%s", sb.String())
}

// applyConfigField applies a single key-value override to a SinkConfig.
func applyConfigField(cfg *SinkConfig, key, value string) error {
	switch key {
	case "minimal_level":
		// Accept both numeric and named values
		if numVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			cfg.MinimalLevel = numVal
		} else {
			levelVal, err := Level(value)
			if err != nil {
				return err
			}
			cfg.MinimalLevel = levelVal
		}

	case "timer_duration_ms":
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("timer_duration_ms must be an integer: %s", value)
		}
		cfg.TimerDuration = time.Duration(ms) * time.Millisecond

	case "external_timer_duration_ms":
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("external_timer_duration_ms must be an integer: %s", value)
		}
		cfg.ExternalTimerDuration = time.Duration(ms) * time.Millisecond

	case "track_unhandled_panics":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmtErrorf("track_unhandled_panics must be a boolean: %s", value)
		}
		cfg.TrackUnhandledPanics = b

	case "static_gates":
		cfg.StaticGates = value

	default:
		return fmtErrorf("unknown config key: %s", key)
	}

	return nil
}
