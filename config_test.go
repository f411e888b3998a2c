package ember

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSinkConfigValidate exercises the validation rules.
func TestSinkConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *SinkConfig)
		wantError bool
	}{
		{"defaults are valid", func(cfg *SinkConfig) {}, false},
		{"zero timer", func(cfg *SinkConfig) { cfg.TimerDuration = 0 }, true},
		{"negative timer", func(cfg *SinkConfig) { cfg.TimerDuration = -time.Second }, true},
		{"negative external timer", func(cfg *SinkConfig) { cfg.ExternalTimerDuration = -time.Second }, true},
		{"nil handler config", func(cfg *SinkConfig) { cfg.Handlers = []HandlerConfig{nil} }, true},
		{"valid handler config", func(cfg *SinkConfig) {
			cfg.Handlers = []HandlerConfig{&testHandlerConfig{ID: "x"}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSinkConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestSinkConfigClone verifies handler slices do not alias.
func TestSinkConfigClone(t *testing.T) {
	cfg := DefaultSinkConfig()
	cfg.Handlers = []HandlerConfig{&testHandlerConfig{ID: "x"}}

	clone := cfg.Clone()
	clone.Handlers = append(clone.Handlers, &testHandlerConfig{ID: "y"})
	assert.Len(t, cfg.Handlers, 1)
	assert.Len(t, clone.Handlers, 2)
}

// TestApplyOverride tests key-value overrides on top of a base config.
func TestApplyOverride(t *testing.T) {
	tests := []struct {
		name      string
		overrides []string
		verify    func(t *testing.T, sink *DispatcherSink)
		wantError bool
	}{
		{
			name: "basic overrides",
			overrides: []string{
				"minimal_level=warn",
				"timer_duration_ms=250",
			},
			verify: func(t *testing.T, sink *DispatcherSink) {
				assert.Equal(t, LevelWarn, sink.state.MinimalLevel.Load())
				assert.Equal(t, int64(250*time.Millisecond), sink.state.TimerDuration.Load())
			},
		},
		{
			name:      "numeric level",
			overrides: []string{"minimal_level=8"},
			verify: func(t *testing.T, sink *DispatcherSink) {
				assert.Equal(t, LevelError, sink.state.MinimalLevel.Load())
			},
		},
		{
			name:      "invalid format",
			overrides: []string{"no-equals-sign"},
			wantError: true,
		},
		{
			name:      "unknown key",
			overrides: []string{"unknown_key=value"},
			wantError: true,
		},
		{
			name:      "invalid value type",
			overrides: []string{"timer_duration_ms=not_a_number"},
			wantError: true,
		},
		{
			name:      "multiple errors reported together",
			overrides: []string{"bad", "also_bad=true"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, _ := createTestSink(t)
			defer sink.Stop()

			err := sink.ApplyOverride(nil, tt.overrides...)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, sink.SyncWait(time.Second))
			tt.verify(t, sink)
		})
	}
}

// TestLevelParsing verifies the level name round trip.
func TestLevelParsing(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", "fatal"} {
		level, err := Level(name)
		require.NoError(t, err)
		assert.Equal(t, name, strings.ToLower(LevelLabel(level)))
	}

	_, err := Level("loud")
	assert.Error(t, err)
}

// TestBuilder verifies the fluent construction path.
func TestBuilder(t *testing.T) {
	factory := newRecordingFactory()

	sink, err := NewBuilder().
		Factory(factory.create).
		MinimalLevelString("warn").
		TimerDuration(50 * time.Millisecond).
		Handler(&testHandlerConfig{ID: "built"}).
		Build()
	require.NoError(t, err)
	defer sink.Stop()

	require.NoError(t, sink.SyncWait(time.Second))
	assert.Equal(t, LevelWarn, sink.state.MinimalLevel.Load())
	assert.Equal(t, 1, factory.get("built").activations)
}

// TestBuilderErrors verifies construction failures surface.
func TestBuilderErrors(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err, "factory is required")

	_, err = NewBuilder().
		Factory(newRecordingFactory().create).
		MinimalLevelString("loud").
		Build()
	assert.Error(t, err, "bad level name surfaces")

	_, err = NewBuilder().
		Factory(newRecordingFactory().create).
		TimerDuration(0).
		Build()
	assert.Error(t, err, "invalid configuration surfaces")
}
