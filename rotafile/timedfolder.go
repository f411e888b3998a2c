package rotafile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CleanupConfig caps the timed-folder population at the root and inside
// the archive.
type CleanupConfig struct {
	MaxCurrentLogFolderCount  int
	MaxArchivedLogFolderCount int
}

const (
	cleanupRetryCount   = 5
	cleanupRetryBackoff = 100 * time.Millisecond
)

// timedFolder pairs a directory entry with the date parsed from its name.
type timedFolder struct {
	name string
	date time.Time
}

// RunTimedFolderCleanup enforces the folder caps: excess timed folders at
// the root move into Archive/, and the archive itself is pruned to its cap,
// oldest first. The operation retries on I/O failure with a linear backoff.
func (fo *FileOutput) RunTimedFolderCleanup(cfg CleanupConfig) error {
	if fo.rootPath == "" {
		return errorf("file output is not initialized")
	}
	if cfg.MaxCurrentLogFolderCount <= 0 {
		return nil
	}

	var lastErr error
	for retry := 0; retry < cleanupRetryCount; retry++ {
		if retry > 0 {
			fo.log.Warnf("timed folder cleanup retry %d/%d: %v", retry, cleanupRetryCount-1, lastErr)
			time.Sleep(time.Duration(retry) * cleanupRetryBackoff)
		}
		if lastErr = fo.cleanupOnce(cfg); lastErr == nil {
			return nil
		}
	}
	fo.log.Errorf("timed folder cleanup failed after %d attempts: %v", cleanupRetryCount, lastErr)
	return lastErr
}

// cleanupOnce is one attempt of the cleanup pass.
func (fo *FileOutput) cleanupOnce(cfg CleanupConfig) error {
	entries, err := os.ReadDir(fo.rootPath)
	if err != nil {
		return errorf("cannot read root '%s': %w", fo.rootPath, err)
	}

	currentBase := filepath.Clean(strings.TrimSuffix(fo.basePath, string(os.PathSeparator)))

	var timed []timedFolder
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(name, archiveDirName) {
			continue
		}
		date, remainder, ok := TryMatch(name)
		if !ok || remainder != "" {
			continue
		}
		if filepath.Join(strings.TrimSuffix(fo.rootPath, string(os.PathSeparator)), name) == currentBase {
			continue
		}
		timed = append(timed, timedFolder{name: name, date: date})
	}

	// Most recent first; ties keep encounter order
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].date.After(timed[j].date) })

	if len(timed) >= cfg.MaxCurrentLogFolderCount {
		archivePath := fo.rootPath + archiveDirName
		if err := os.MkdirAll(archivePath, 0755); err != nil {
			return errorf("cannot create archive '%s': %w", archivePath, err)
		}

		// The current base is not part of the census and one slot stays
		// reserved for it to land into after its own closure
		moveCount := len(timed) - (cfg.MaxCurrentLogFolderCount - 1)
		for i := 0; i < moveCount; i++ {
			folder := timed[len(timed)-1-i]
			src := fo.rootPath + folder.name
			dst := filepath.Join(archivePath, folder.name)
			if _, err := os.Lstat(dst); err == nil {
				dst = filepath.Join(archivePath, folder.name+"-"+uuid.NewString())
			}
			if err := os.Rename(src, dst); err != nil {
				return errorf("cannot archive '%s': %w", src, err)
			}
		}
	}

	if cfg.MaxArchivedLogFolderCount > 0 {
		if err := fo.pruneArchive(cfg.MaxArchivedLogFolderCount); err != nil {
			return err
		}
	}
	return nil
}

// pruneArchive deletes archived timed folders beyond the cap, oldest
// first. Collision-resolved names (uuid suffixes) are recognized too.
func (fo *FileOutput) pruneArchive(maxArchived int) error {
	archivePath := fo.rootPath + archiveDirName
	entries, err := os.ReadDir(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errorf("cannot read archive '%s': %w", archivePath, err)
	}

	var archived []timedFolder
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		date, _, ok := TryMatch(entry.Name())
		if !ok {
			continue
		}
		archived = append(archived, timedFolder{name: entry.Name(), date: date})
	}
	if len(archived) <= maxArchived {
		return nil
	}

	sort.SliceStable(archived, func(i, j int) bool { return archived[i].date.After(archived[j].date) })
	for _, folder := range archived[maxArchived:] {
		path := filepath.Join(archivePath, folder.name)
		if err := os.RemoveAll(path); err != nil {
			return errorf("cannot delete archived folder '%s': %w", path, err)
		}
	}
	return nil
}
