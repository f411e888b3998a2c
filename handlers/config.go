package handlers

import (
	"errors"
	"reflect"
	"time"

	"github.com/lixenwraith/config"

	"github.com/emberlog/ember"
)

// File sections bind the TOML surface to flat structs the loader can
// fill. Timer durations travel as milliseconds, the housekeeping age as
// hours, sizes as bytes.
type sinkSection struct {
	MinimalLevel            string `toml:"minimal_level"`
	TimerDurationMs         int64  `toml:"timer_duration_ms"`
	ExternalTimerDurationMs int64  `toml:"external_timer_duration_ms"`
	TrackUnhandledPanics    bool   `toml:"track_unhandled_panics"`
	StaticGates             string `toml:"static_gates"`
}

type fileSection struct {
	Enabled                   bool   `toml:"enabled"`
	Path                      string `toml:"path"`
	FileNameSuffix            string `toml:"file_name_suffix"`
	MaxCountPerFile           int64  `toml:"max_count_per_file"`
	UseGzipCompression        bool   `toml:"use_gzip_compression"`
	MaxCurrentLogFolderCount  int64  `toml:"max_current_log_folder_count"`
	MaxArchivedLogFolderCount int64  `toml:"max_archived_log_folder_count"`
	LastRunFileName           string `toml:"last_run_file_name"`
	HousekeepingRate          int64  `toml:"housekeeping_rate"`
	MinTimeToKeepHrs          float64 `toml:"min_time_to_keep_hrs"`
	MaxTotalBytesToKeep       int64  `toml:"max_total_bytes_to_keep"`
	Format                    string `toml:"format"`
	TimestampFormat           string `toml:"timestamp_format"`
}

type consoleSection struct {
	Enabled         bool   `toml:"enabled"`
	Target          string `toml:"target"`
	Format          string `toml:"format"`
	TimestampFormat string `toml:"timestamp_format"`
}

type metricsSection struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

var defaultSinkSection = sinkSection{
	MinimalLevel:         "debug",
	TimerDurationMs:      500,
	TrackUnhandledPanics: true,
}

// LoadFile reads a sink configuration from a TOML file. A missing file
// yields the defaults with no handlers, matching a process that has not
// been configured yet.
func LoadFile(path string) (*ember.SinkConfig, error) {
	loader := config.New()

	sink := defaultSinkSection
	textFile := fileSection{MaxCountPerFile: 20000}
	binaryFile := fileSection{MaxCountPerFile: 20000}
	console := consoleSection{}
	metrics := metricsSection{}

	sections := []struct {
		prefix string
		target any
	}{
		{"sink.", &sink},
		{"text_file.", &textFile},
		{"binary_file.", &binaryFile},
		{"console.", &console},
		{"metrics.", &metrics},
	}

	for _, s := range sections {
		if err := loader.RegisterStruct(s.prefix, reflect.ValueOf(s.target).Elem().Interface()); err != nil {
			return nil, errorf("cannot register config section '%s': %w", s.prefix, err)
		}
	}

	if err := loader.Load(path, nil); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return nil, errorf("cannot load config from '%s': %w", path, err)
	}

	for _, s := range sections {
		if err := extractSection(loader, s.prefix, s.target); err != nil {
			return nil, errorf("cannot extract config section '%s': %w", s.prefix, err)
		}
	}

	level, err := ember.Level(sink.MinimalLevel)
	if err != nil {
		return nil, err
	}
	cfg := ember.DefaultSinkConfig()
	cfg.MinimalLevel = level
	cfg.TimerDuration = time.Duration(sink.TimerDurationMs) * time.Millisecond
	cfg.ExternalTimerDuration = time.Duration(sink.ExternalTimerDurationMs) * time.Millisecond
	cfg.TrackUnhandledPanics = sink.TrackUnhandledPanics
	cfg.StaticGates = sink.StaticGates

	if textFile.Enabled {
		cfg.Handlers = append(cfg.Handlers, &TextFileConfig{
			Path:                      textFile.Path,
			FileNameSuffix:            textFile.FileNameSuffix,
			MaxCountPerFile:           int(textFile.MaxCountPerFile),
			UseGzip:                   textFile.UseGzipCompression,
			MaxCurrentLogFolderCount:  int(textFile.MaxCurrentLogFolderCount),
			MaxArchivedLogFolderCount: int(textFile.MaxArchivedLogFolderCount),
			LastRunFileName:           textFile.LastRunFileName,
			HousekeepingRate:          int(textFile.HousekeepingRate),
			MinTimeToKeep:             time.Duration(textFile.MinTimeToKeepHrs * float64(time.Hour)),
			MaxTotalBytesToKeep:       textFile.MaxTotalBytesToKeep,
			Format:                    textFile.Format,
			TimestampFormat:           textFile.TimestampFormat,
		})
	}
	if binaryFile.Enabled {
		cfg.Handlers = append(cfg.Handlers, &BinaryFileConfig{
			Path:                      binaryFile.Path,
			FileNameSuffix:            binaryFile.FileNameSuffix,
			MaxCountPerFile:           int(binaryFile.MaxCountPerFile),
			UseGzip:                   binaryFile.UseGzipCompression,
			MaxCurrentLogFolderCount:  int(binaryFile.MaxCurrentLogFolderCount),
			MaxArchivedLogFolderCount: int(binaryFile.MaxArchivedLogFolderCount),
			LastRunFileName:           binaryFile.LastRunFileName,
			HousekeepingRate:          int(binaryFile.HousekeepingRate),
			MinTimeToKeep:             time.Duration(binaryFile.MinTimeToKeepHrs * float64(time.Hour)),
			MaxTotalBytesToKeep:       binaryFile.MaxTotalBytesToKeep,
		})
	}
	if console.Enabled {
		cfg.Handlers = append(cfg.Handlers, &ConsoleConfig{
			Target:          console.Target,
			Format:          console.Format,
			TimestampFormat: console.TimestampFormat,
		})
	}
	if metrics.Enabled {
		cfg.Handlers = append(cfg.Handlers, &MetricsConfig{
			Namespace: metrics.Namespace,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// extractSection copies loader values into a section struct by toml tag.
func extractSection(loader *config.Config, prefix string, target any) error {
	v := reflect.ValueOf(target).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		tomlTag := field.Tag.Get("toml")
		if tomlTag == "" || tomlTag == "-" {
			continue
		}

		val, found := loader.Get(prefix + tomlTag)
		if !found {
			continue // Keep the default value
		}

		if err := setFieldValue(fieldValue, val); err != nil {
			return errorf("cannot set field %s: %w", field.Name, err)
		}
	}
	return nil
}

// setFieldValue sets a reflect.Value with tolerant numeric conversion.
func setFieldValue(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		strVal, ok := value.(string)
		if !ok {
			return errorf("expected string, got %T", value)
		}
		field.SetString(strVal)

	case reflect.Int64:
		switch v := value.(type) {
		case int64:
			field.SetInt(v)
		case int:
			field.SetInt(int64(v))
		case float64:
			field.SetInt(int64(v))
		default:
			return errorf("expected int64, got %T", value)
		}

	case reflect.Float64:
		switch v := value.(type) {
		case float64:
			field.SetFloat(v)
		case int64:
			field.SetFloat(float64(v))
		default:
			return errorf("expected float64, got %T", value)
		}

	case reflect.Bool:
		boolVal, ok := value.(bool)
		if !ok {
			return errorf("expected bool, got %T", value)
		}
		field.SetBool(boolVal)

	default:
		return errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}
