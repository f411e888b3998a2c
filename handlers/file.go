package handlers

import (
	"io"
	"path/filepath"
	"time"

	"github.com/emberlog/ember"
	"github.com/emberlog/ember/formatter"
	"github.com/emberlog/ember/rotafile"
)

// Handler kinds understood by the registry.
const (
	KindTextFile   = "TextFile"
	KindBinaryFile = "BinaryFile"
	KindConsole    = "Console"
	KindMetrics    = "Metrics"
)

// TextFileConfig configures a rotating text file handler. Path doubles as
// the handler identity: a configuration applies to the handler writing to
// the same resolved path.
type TextFileConfig struct {
	Path string `toml:"path"`

	FileNameSuffix  string `toml:"file_name_suffix"`
	MaxCountPerFile int    `toml:"max_count_per_file"`
	UseGzip         bool   `toml:"use_gzip_compression"`

	MaxCurrentLogFolderCount  int `toml:"max_current_log_folder_count"`
	MaxArchivedLogFolderCount int `toml:"max_archived_log_folder_count"`

	LastRunFileName string `toml:"last_run_file_name"`

	// Housekeeping runs every HousekeepingRate timer ticks; zero disables
	// it. At least one of the two caps must then be positive.
	HousekeepingRate    int           `toml:"housekeeping_rate"`
	MinTimeToKeep       time.Duration `toml:"min_time_to_keep"`
	MaxTotalBytesToKeep int64         `toml:"max_total_bytes_to_keep"`

	// Format selects "txt" or "json" lines; TimestampFormat overrides the
	// default RFC3339Nano rendering.
	Format          string `toml:"format"`
	TimestampFormat string `toml:"timestamp_format"`
}

// Kind implements ember.HandlerConfig.
func (c *TextFileConfig) Kind() string { return KindTextFile }

// Validate implements ember.HandlerConfig.
func (c *TextFileConfig) Validate() error {
	if c.Path == "" {
		return errorf("text file handler requires a path")
	}
	if c.MaxCountPerFile <= 0 {
		return errorf("max_count_per_file must be positive: %d", c.MaxCountPerFile)
	}
	if c.MaxCurrentLogFolderCount < 0 || c.MaxArchivedLogFolderCount < 0 {
		return errorf("folder counts cannot be negative")
	}
	if c.MinTimeToKeep < 0 || c.MaxTotalBytesToKeep < 0 {
		return errorf("housekeeping caps cannot be negative")
	}
	if c.HousekeepingRate < 0 {
		return errorf("housekeeping_rate cannot be negative: %d", c.HousekeepingRate)
	}
	if c.HousekeepingRate > 0 && c.MinTimeToKeep <= 0 && c.MaxTotalBytesToKeep <= 0 {
		return errorf("housekeeping requires min_time_to_keep or max_total_bytes_to_keep")
	}
	if c.Format != "" && c.Format != "txt" && c.Format != "json" {
		return errorf("invalid format: '%s' (use txt or json)", c.Format)
	}
	return nil
}

// withDefaults fills the optional fields.
func (c *TextFileConfig) withDefaults() *TextFileConfig {
	out := *c
	if out.FileNameSuffix == "" {
		out.FileNameSuffix = ".ember.log"
	}
	if out.Format == "" {
		out.Format = "txt"
	}
	return &out
}

// TextFileHandler drives one rotation engine with the text codec.
type TextFileHandler struct {
	cfg          *TextFileConfig
	identityPath string
	fo           *rotafile.FileOutput
	fm           *formatter.Formatter
	ticks        int
}

// newTextFileHandler is the registry factory.
func newTextFileHandler(cfg ember.HandlerConfig, _ *ember.ServiceRegistry) (ember.Handler, error) {
	fileCfg, ok := cfg.(*TextFileConfig)
	if !ok {
		return nil, errorf("text file handler requires *TextFileConfig, got %T", cfg)
	}
	return NewTextFileHandler(fileCfg)
}

// NewTextFileHandler creates the handler without activating it.
func NewTextFileHandler(cfg *TextFileConfig) (*TextFileHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	identity, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, errorf("cannot resolve path '%s': %w", cfg.Path, err)
	}
	h := &TextFileHandler{
		cfg:          cfg,
		identityPath: identity,
	}
	h.fm = formatter.New().Type(cfg.Format).TimestampFormat(cfg.TimestampFormat)
	return h, nil
}

// Activate initializes the rotation engine and runs the timed-folder
// cleanup eagerly, as the lifecycle boundary is the one place folder caps
// are enforced.
func (h *TextFileHandler) Activate(m *ember.Monitor) error {
	if h.fo == nil {
		fo, err := rotafile.NewFileOutput(rotafile.Config{
			Path:                      h.cfg.Path,
			FileNameSuffix:            h.cfg.FileNameSuffix,
			MaxCountPerFile:           h.cfg.MaxCountPerFile,
			UseGzip:                   h.cfg.UseGzip,
			MaxCurrentLogFolderCount:  h.cfg.MaxCurrentLogFolderCount,
			MaxArchivedLogFolderCount: h.cfg.MaxArchivedLogFolderCount,
			LastRunFileName:           h.cfg.LastRunFileName,
		}, h.writeEntry, monitorLogger{m})
		if err != nil {
			return err
		}
		h.fo = fo
	}

	if err := h.fo.Initialize(); err != nil {
		return err
	}

	if h.cfg.MaxCurrentLogFolderCount > 0 {
		// Failure caps nothing but must not block activation
		_ = h.fo.RunTimedFolderCleanup(rotafile.CleanupConfig{
			MaxCurrentLogFolderCount:  h.cfg.MaxCurrentLogFolderCount,
			MaxArchivedLogFolderCount: h.cfg.MaxArchivedLogFolderCount,
		})
	}
	h.ticks = 0
	return nil
}

// Deactivate finalizes the current file and releases the base path. The
// engine survives for reactivation so the root path is reused; in timed
// mode the next activation opens a new timed folder.
func (h *TextFileHandler) Deactivate(_ *ember.Monitor) error {
	if h.fo == nil {
		return nil
	}
	return h.fo.Deactivate()
}

// Handle writes one event through the rotation engine. I/O trouble is
// logged and absorbed: the entry is lost but the handler stays, and the
// next rotation retries from scratch. Internal events are not re-reported
// so a dead disk cannot feed an error loop through the sink.
func (h *TextFileHandler) Handle(m *ember.Monitor, e ember.Event) error {
	if err := h.fo.Write(e); err != nil {
		if !e.Tags().Overlaps(ember.TagInternal) {
			monitorLogger{m}.Errorf("entry write failed: %v", err)
		}
	}
	return nil
}

// OnTimer advances the housekeeping cadence.
func (h *TextFileHandler) OnTimer(m *ember.Monitor, _ time.Duration) error {
	if h.cfg.HousekeepingRate <= 0 {
		return nil
	}
	h.ticks++
	if h.ticks < h.cfg.HousekeepingRate {
		return nil
	}
	h.ticks = 0
	if err := h.fo.RunFileHousekeeping(h.cfg.MinTimeToKeep, h.cfg.MaxTotalBytesToKeep); err != nil {
		// Housekeeping trouble is not a handler fault; the next cadence
		// retries from scratch
		monitorLogger{m}.Warnf("file housekeeping failed: %v", err)
	}
	return nil
}

// ApplyConfiguration claims configurations whose resolved path matches and
// applies them in place, so an unchanged handler keeps writing without
// interruption.
func (h *TextFileHandler) ApplyConfiguration(_ *ember.Monitor, cfg ember.HandlerConfig) (bool, error) {
	next, ok := cfg.(*TextFileConfig)
	if !ok {
		return false, nil
	}
	nextPath, err := filepath.Abs(next.Path)
	if err != nil || nextPath != h.identityPath {
		return false, nil
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	next = next.withDefaults()

	if h.fo != nil {
		err := h.fo.Reconfigure(rotafile.Reconfiguration{
			FileNameSuffix:            &next.FileNameSuffix,
			MaxCountPerFile:           &next.MaxCountPerFile,
			UseGzip:                   &next.UseGzip,
			MaxCurrentLogFolderCount:  &next.MaxCurrentLogFolderCount,
			MaxArchivedLogFolderCount: &next.MaxArchivedLogFolderCount,
			LastRunFileName:           &next.LastRunFileName,
		})
		if err != nil {
			return false, err
		}
	}

	if next.Format != h.cfg.Format || next.TimestampFormat != h.cfg.TimestampFormat {
		h.fm = formatter.New().Type(next.Format).TimestampFormat(next.TimestampFormat)
	}
	h.cfg = next
	return true, nil
}

// writeEntry is the text codec injected into the rotation engine.
func (h *TextFileHandler) writeEntry(w io.Writer, e ember.Event) error {
	entry := formatter.Entry{
		Time:      e.LogTime(),
		Level:     ember.LevelLabel(e.Level()),
		Monitor:   shortID(e.MonitorID()),
		Text:      e.Text(),
		Exception: e.ExceptionData(),
	}
	_, err := w.Write(h.fm.Format(entry))
	return err
}

// FileOutput exposes the engine for tests and actions.
func (h *TextFileHandler) FileOutput() *rotafile.FileOutput {
	return h.fo
}
