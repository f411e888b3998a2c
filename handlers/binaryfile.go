package handlers

import (
	"encoding/binary"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/emberlog/ember"
	"github.com/emberlog/ember/rotafile"
)

// BinaryFileConfig configures a rotating binary file handler. The record
// layout is the compact length-prefixed encoding of WriteBinaryEntry;
// combined with gzip it is the densest on-disk form.
type BinaryFileConfig struct {
	Path string `toml:"path"`

	FileNameSuffix  string `toml:"file_name_suffix"`
	MaxCountPerFile int    `toml:"max_count_per_file"`
	UseGzip         bool   `toml:"use_gzip_compression"`

	MaxCurrentLogFolderCount  int `toml:"max_current_log_folder_count"`
	MaxArchivedLogFolderCount int `toml:"max_archived_log_folder_count"`

	LastRunFileName string `toml:"last_run_file_name"`

	HousekeepingRate    int           `toml:"housekeeping_rate"`
	MinTimeToKeep       time.Duration `toml:"min_time_to_keep"`
	MaxTotalBytesToKeep int64         `toml:"max_total_bytes_to_keep"`
}

// Kind implements ember.HandlerConfig.
func (c *BinaryFileConfig) Kind() string { return KindBinaryFile }

// Validate implements ember.HandlerConfig.
func (c *BinaryFileConfig) Validate() error {
	if c.Path == "" {
		return errorf("binary file handler requires a path")
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
	if c.HousekeepingRate > 0 && c.MinTimeToKeep <= 0 && c.MaxTotalBytesToKeep <= 0 {
		return errorf("housekeeping requires min_time_to_keep or max_total_bytes_to_keep")
	}
	return nil
}

func (c *BinaryFileConfig) withDefaults() *BinaryFileConfig {
	out := *c
	if out.FileNameSuffix == "" {
		out.FileNameSuffix = ".embin"
	}
	return &out
}

// BinaryFileHandler drives one rotation engine with the binary codec.
type BinaryFileHandler struct {
	cfg          *BinaryFileConfig
	identityPath string
	fo           *rotafile.FileOutput
	ticks        int
}

func newBinaryFileHandler(cfg ember.HandlerConfig, _ *ember.ServiceRegistry) (ember.Handler, error) {
	binCfg, ok := cfg.(*BinaryFileConfig)
	if !ok {
		return nil, errorf("binary file handler requires *BinaryFileConfig, got %T", cfg)
	}
	return NewBinaryFileHandler(binCfg)
}

// NewBinaryFileHandler creates the handler without activating it.
func NewBinaryFileHandler(cfg *BinaryFileConfig) (*BinaryFileHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	identity, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, errorf("cannot resolve path '%s': %w", cfg.Path, err)
	}
	return &BinaryFileHandler{
		cfg:          cfg,
		identityPath: identity,
	}, nil
}

func (h *BinaryFileHandler) Activate(m *ember.Monitor) error {
	if h.fo == nil {
		fo, err := rotafile.NewFileOutput(rotafile.Config{
			Path:                      h.cfg.Path,
			FileNameSuffix:            h.cfg.FileNameSuffix,
			MaxCountPerFile:           h.cfg.MaxCountPerFile,
			UseGzip:                   h.cfg.UseGzip,
			MaxCurrentLogFolderCount:  h.cfg.MaxCurrentLogFolderCount,
			MaxArchivedLogFolderCount: h.cfg.MaxArchivedLogFolderCount,
			LastRunFileName:           h.cfg.LastRunFileName,
		}, WriteBinaryEntry, monitorLogger{m})
		if err != nil {
			return err
		}
		h.fo = fo
	}

	if err := h.fo.Initialize(); err != nil {
		return err
	}
	if h.cfg.MaxCurrentLogFolderCount > 0 {
		_ = h.fo.RunTimedFolderCleanup(rotafile.CleanupConfig{
			MaxCurrentLogFolderCount:  h.cfg.MaxCurrentLogFolderCount,
			MaxArchivedLogFolderCount: h.cfg.MaxArchivedLogFolderCount,
		})
	}
	h.ticks = 0
	return nil
}

func (h *BinaryFileHandler) Deactivate(_ *ember.Monitor) error {
	if h.fo == nil {
		return nil
	}
	return h.fo.Deactivate()
}

func (h *BinaryFileHandler) Handle(m *ember.Monitor, e ember.Event) error {
	if err := h.fo.Write(e); err != nil {
		if !e.Tags().Overlaps(ember.TagInternal) {
			monitorLogger{m}.Errorf("entry write failed: %v", err)
		}
	}
	return nil
}

func (h *BinaryFileHandler) OnTimer(m *ember.Monitor, _ time.Duration) error {
	if h.cfg.HousekeepingRate <= 0 {
		return nil
	}
	h.ticks++
	if h.ticks < h.cfg.HousekeepingRate {
		return nil
	}
	h.ticks = 0
	if err := h.fo.RunFileHousekeeping(h.cfg.MinTimeToKeep, h.cfg.MaxTotalBytesToKeep); err != nil {
		monitorLogger{m}.Warnf("file housekeeping failed: %v", err)
	}
	return nil
}

func (h *BinaryFileHandler) ApplyConfiguration(_ *ember.Monitor, cfg ember.HandlerConfig) (bool, error) {
	next, ok := cfg.(*BinaryFileConfig)
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
	h.cfg = next
	return true, nil
}

// FileOutput exposes the engine for tests and actions.
func (h *BinaryFileHandler) FileOutput() *rotafile.FileOutput {
	return h.fo
}

// BinaryEntry is the decoded form of one binary record.
type BinaryEntry struct {
	MonitorID       uuid.UUID
	LogTime         time.Time
	PreviousLogTime time.Time
	Level           int64
	Tags            ember.TagSet
	Text            string
	Exception       string
}

// WriteBinaryEntry encodes one event as a length-prefixed little-endian
// record: monitor id, log and previous times as unix nanoseconds, level,
// tags, then the text and exception strings.
func WriteBinaryEntry(w io.Writer, e ember.Event) error {
	text := []byte(e.Text())
	exception := []byte(e.ExceptionData())

	payload := 16 + 8 + 8 + 8 + 8 + 4 + len(text) + 4 + len(exception)
	buf := make([]byte, 0, 4+payload)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(payload))

	id := e.MonitorID()
	buf = append(buf, id[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.LogTime().UnixNano()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.PreviousLogTime().UnixNano()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Level()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Tags()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(text)))
	buf = append(buf, text...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(exception)))
	buf = append(buf, exception...)

	_, err := w.Write(buf)
	return err
}

// ReadBinaryEntry decodes one record from r, mirroring WriteBinaryEntry.
func ReadBinaryEntry(r io.Reader) (*BinaryEntry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if len(payload) < 16+8+8+8+8+4 {
		return nil, errorf("binary record too short: %d bytes", len(payload))
	}

	entry := &BinaryEntry{}
	copy(entry.MonitorID[:], payload[:16])
	offset := 16
	entry.LogTime = time.Unix(0, int64(binary.LittleEndian.Uint64(payload[offset:]))).UTC()
	offset += 8
	entry.PreviousLogTime = time.Unix(0, int64(binary.LittleEndian.Uint64(payload[offset:]))).UTC()
	offset += 8
	entry.Level = int64(binary.LittleEndian.Uint64(payload[offset:]))
	offset += 8
	entry.Tags = ember.TagSet(binary.LittleEndian.Uint64(payload[offset:]))
	offset += 8

	textLen := int(binary.LittleEndian.Uint32(payload[offset:]))
	offset += 4
	if offset+textLen+4 > len(payload) {
		return nil, errorf("binary record text length out of range")
	}
	entry.Text = string(payload[offset : offset+textLen])
	offset += textLen

	excLen := int(binary.LittleEndian.Uint32(payload[offset:]))
	offset += 4
	if offset+excLen > len(payload) {
		return nil, errorf("binary record exception length out of range")
	}
	entry.Exception = string(payload[offset : offset+excLen])
	return entry, nil
}
