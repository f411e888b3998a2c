package rotafile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/emberlog/ember"
)

// WriteEntry encodes one event onto the open file. The engine treats the
// encoding as opaque; text and binary handlers inject different codecs.
type WriteEntry func(w io.Writer, e ember.Event) error

// Logger receives the engine's diagnostics. The file handler wires it to
// the sink's internal monitor.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// Config carries the initial settings of a FileOutput.
type Config struct {
	// Path is the root directory of this output.
	Path string

	// FileNameSuffix terminates every produced file name, including the
	// format extension (e.g. ".ember.log").
	FileNameSuffix string

	// MaxCountPerFile is the rotation threshold in entries.
	MaxCountPerFile int

	// UseGzip compresses files on finalization. The suffix is unchanged;
	// compression is signalled by configuration, not by extension.
	UseGzip bool

	// MaxCurrentLogFolderCount enables timed-folder mode when positive.
	MaxCurrentLogFolderCount int

	// MaxArchivedLogFolderCount caps Archive/ when positive; zero keeps
	// archived folders until housekeeping ages them out.
	MaxArchivedLogFolderCount int

	// LastRunFileName enables the "last run" symlink when non-empty.
	LastRunFileName string
}

// FileOutput is the rotation engine: it owns at most one open temp file,
// finalizes it on rotation or close, and maintains the timed-folder and
// housekeeping lifecycle around it. All methods must be called from a
// single goroutine (the sink worker).
type FileOutput struct {
	log   Logger
	write WriteEntry

	configuredPath string
	rootPath       string // fixed after the first successful Initialize
	basePath    string // empty while deactivated
	timedFolder string // kept across re-initializes, cleared by Deactivate

	out            *os.File
	outPath        string
	openedTimeUTC  time.Time
	openedToken    string
	countRemainder int

	fileNameSuffix     string
	maxCountPerFile    int
	useGzip            bool
	timedFolderMode    bool
	maxCurrentFolders  int
	maxArchivedFolders int
	withLastRunSymlink bool
	lastRunFileName    string
	lastRunFilePath    string
}

// symlinkDisabled latches once the platform denies symbolic link creation
// for lack of privilege; no further attempt is made in this process.
var symlinkDisabled atomic.Bool

const (
	tempPrefix     = "T-"
	tempExtension  = ".tmp"
	archiveDirName = "Archive"
	gzipCopyBuffer = 64 * 1024
)

// NewFileOutput validates cfg and creates an engine. The returned output
// is inert until Initialize succeeds.
func NewFileOutput(cfg Config, write WriteEntry, log Logger) (*FileOutput, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errorf("output path cannot be empty")
	}
	if strings.TrimSpace(cfg.FileNameSuffix) == "" {
		return nil, errorf("file name suffix cannot be empty")
	}
	if cfg.MaxCountPerFile <= 0 {
		return nil, errorf("max count per file must be positive: %d", cfg.MaxCountPerFile)
	}
	if cfg.MaxCurrentLogFolderCount < 0 || cfg.MaxArchivedLogFolderCount < 0 {
		return nil, errorf("folder counts cannot be negative")
	}
	if write == nil {
		return nil, errorf("entry writer cannot be nil")
	}
	if log == nil {
		log = nopLogger{}
	}

	return &FileOutput{
		log:                log,
		write:              write,
		fileNameSuffix:     cfg.FileNameSuffix,
		maxCountPerFile:    cfg.MaxCountPerFile,
		useGzip:            cfg.UseGzip,
		timedFolderMode:    cfg.MaxCurrentLogFolderCount > 0,
		maxCurrentFolders:  cfg.MaxCurrentLogFolderCount,
		maxArchivedFolders: cfg.MaxArchivedLogFolderCount,
		withLastRunSymlink: cfg.LastRunFileName != "",
		lastRunFileName:    cfg.LastRunFileName,
		configuredPath:     cfg.Path,
	}, nil
}

// Initialize resolves the root path on first use and (re)computes the base
// path. In timed mode each activation opens its own timed folder; only a
// re-initialize within the same activation reuses the folder already
// chosen.
func (fo *FileOutput) Initialize() error {
	if fo.rootPath == "" {
		abs, err := filepath.Abs(fo.configuredPath)
		if err != nil {
			return errorf("cannot resolve root path '%s': %w", fo.configuredPath, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return errorf("cannot create root path '%s': %w", abs, err)
		}
		fo.rootPath = abs + string(os.PathSeparator)
	}

	if fo.timedFolderMode {
		// A re-initialize within one activation (reconfiguration) keeps
		// the folder already chosen, if housekeeping has not removed it;
		// each fresh activation starts a new one
		if fo.timedFolder != "" {
			if info, err := os.Stat(fo.timedFolder); err == nil && info.IsDir() {
				fo.basePath = fo.timedFolder
			} else {
				fo.timedFolder = ""
			}
		}
		if fo.timedFolder == "" {
			_, token := NextToken(time.Now())
			folder := fo.rootPath + token + string(os.PathSeparator)
			if err := os.MkdirAll(folder, 0755); err != nil {
				return errorf("cannot create timed folder '%s': %w", folder, err)
			}
			fo.timedFolder = folder
			fo.basePath = folder
		}
	} else {
		fo.basePath = fo.rootPath
	}

	if fo.withLastRunSymlink {
		fo.lastRunFilePath = fo.rootPath + fo.lastRunFileName
	}
	return nil
}

// Write encodes one event onto the current file, opening a new one when
// needed, and rotates once the entry budget is exhausted. It may only be
// called after a successful Initialize.
func (fo *FileOutput) Write(e ember.Event) error {
	if fo.basePath == "" {
		return errorf("file output is not initialized")
	}
	if fo.out == nil {
		if err := fo.openNewFile(); err != nil {
			return err
		}
	}

	if err := fo.write(fo.out, e); err != nil {
		return errorf("entry write failed on '%s': %w", fo.outPath, err)
	}

	fo.countRemainder--
	if fo.countRemainder <= 0 {
		if _, err := fo.closeCurrentFile(false); err != nil {
			return err
		}
	}
	return nil
}

// Close finalizes the current file. With forget the temp file is deleted
// instead of finalized. Returns the final path, or "" when no file was
// produced.
func (fo *FileOutput) Close(forget bool) (string, error) {
	return fo.closeCurrentFile(forget)
}

// Deactivate closes the current file and clears the base path. The root
// path survives; the next activation opens a new timed folder.
func (fo *FileOutput) Deactivate() error {
	_, err := fo.closeCurrentFile(false)
	fo.basePath = ""
	fo.timedFolder = ""
	return err
}

// CurrentTempPath reports the path of the open temp file, or "".
func (fo *FileOutput) CurrentTempPath() string {
	if fo.out == nil {
		return ""
	}
	return fo.outPath
}

// RootPath reports the resolved root directory (with trailing separator),
// or "" before the first successful Initialize.
func (fo *FileOutput) RootPath() string {
	return fo.rootPath
}

// BasePath reports the directory files are currently produced in.
func (fo *FileOutput) BasePath() string {
	return fo.basePath
}

// openNewFile creates the next temp file exclusively and resets the entry
// budget. The token names both the temp file and, later, the finalized
// file of the same rotation.
func (fo *FileOutput) openNewFile() error {
	if fo.timedFolderMode {
		if err := os.MkdirAll(fo.basePath, 0755); err != nil {
			return errorf("cannot create timed folder '%s': %w", fo.basePath, err)
		}
	}

	for {
		openedTime, token := NextToken(time.Now())
		path := fo.basePath + tempPrefix + token + fo.fileNameSuffix + tempExtension
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				// A leftover from a previous run holds this name; the next
				// token is strictly greater, so probing terminates
				continue
			}
			return errorf("cannot create log file '%s': %w", path, err)
		}
		fo.out = f
		fo.outPath = path
		fo.openedTimeUTC = openedTime
		fo.openedToken = token
		fo.countRemainder = fo.maxCountPerFile
		return nil
	}
}

// closeCurrentFile closes the open stream and finalizes the temp file:
// deletion when forgotten or empty, rename when plain, gzip copy when
// compressing.
func (fo *FileOutput) closeCurrentFile(forget bool) (string, error) {
	if fo.out == nil {
		return "", nil
	}

	f := fo.out
	tempPath := fo.outPath
	empty := fo.countRemainder == fo.maxCountPerFile
	fo.out = nil
	fo.outPath = ""

	if err := f.Close(); err != nil {
		fo.log.Warnf("close of '%s' failed: %v", tempPath, err)
	}

	if forget || empty {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			fo.log.Warnf("cannot delete temp file '%s': %v", tempPath, err)
		}
		return "", nil
	}

	var finalPath string
	var err error
	if fo.useGzip {
		finalPath, err = fo.finalizeGzip(tempPath)
	} else {
		finalPath, err = fo.finalizeRename(tempPath)
	}
	if err != nil {
		return "", err
	}

	fo.updateLastRunSymlink(finalPath)
	return finalPath, nil
}

// finalizeRename moves the temp file to its final timed name. A conflict
// with an existing file is resolved by probing with fresh tokens.
func (fo *FileOutput) finalizeRename(tempPath string) (string, error) {
	token := fo.openedToken
	for {
		target := fo.basePath + token + fo.fileNameSuffix
		if _, err := os.Lstat(target); err == nil {
			_, token = NextToken(time.Now())
			continue
		}
		if err := os.Rename(tempPath, target); err != nil {
			return "", errorf("cannot finalize '%s': %w", tempPath, err)
		}
		return target, nil
	}
}

// finalizeGzip streams the temp file through a gzip compressor into a new
// unique final file. On failure the temp file is preserved so no data is
// lost.
func (fo *FileOutput) finalizeGzip(tempPath string) (string, error) {
	src, err := os.Open(tempPath)
	if err != nil {
		return "", errorf("cannot reopen temp file '%s' for compression: %w", tempPath, err)
	}
	defer src.Close()

	token := fo.openedToken
	var dst *os.File
	var target string
	for {
		target = fo.basePath + token + fo.fileNameSuffix
		dst, err = os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				_, token = NextToken(time.Now())
				continue
			}
			return "", errorf("cannot create compressed file '%s': %w", target, err)
		}
		break
	}

	gz, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err != nil {
		dst.Close()
		os.Remove(target)
		return "", errorf("cannot create gzip writer: %w", err)
	}

	buf := make([]byte, gzipCopyBuffer)
	if _, err := io.CopyBuffer(gz, src, buf); err == nil {
		err = gz.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
	} else {
		gz.Close()
		dst.Close()
	}
	if err != nil {
		os.Remove(target)
		return "", errorf("compression of '%s' failed, temp file kept: %w", tempPath, err)
	}

	if err := os.Remove(tempPath); err != nil {
		fo.log.Warnf("cannot delete temp file '%s' after compression: %v", tempPath, err)
	}
	return target, nil
}

// updateLastRunSymlink repoints the "last run" link at the finalized file.
// A privilege error disables the feature for the rest of the process.
func (fo *FileOutput) updateLastRunSymlink(finalPath string) {
	if !fo.withLastRunSymlink || symlinkDisabled.Load() {
		return
	}

	if err := os.Remove(fo.lastRunFilePath); err != nil && !os.IsNotExist(err) {
		fo.log.Warnf("cannot delete previous last-run link '%s': %v", fo.lastRunFilePath, err)
	}
	if err := os.Symlink(finalPath, fo.lastRunFilePath); err != nil {
		if errors.Is(err, os.ErrPermission) {
			if symlinkDisabled.CompareAndSwap(false, true) {
				fo.log.Warnf("symbolic links not permitted, disabling last-run link for this process: %v", err)
			}
			return
		}
		fo.log.Warnf("cannot create last-run link '%s': %v", fo.lastRunFilePath, err)
	}
}
