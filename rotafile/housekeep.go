package rotafile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// candidate is one file under housekeeping consideration.
type candidate struct {
	path string
	date time.Time
	size int64
}

// RunFileHousekeeping enforces the age and total-size caps across all
// files this output produced: the base path, the timed folders at the
// root, and the archived timed folders. Files younger than minAge are
// never deleted; beyond that, the oldest files go first until the total
// fits under maxTotalBytes. At least one cap must be positive.
func (fo *FileOutput) RunFileHousekeeping(minAge time.Duration, maxTotalBytes int64) error {
	if minAge <= 0 && maxTotalBytes <= 0 {
		return errorf("housekeeping requires a positive age or size cap")
	}
	if fo.rootPath == "" {
		return errorf("file output is not initialized")
	}

	root := strings.TrimSuffix(fo.rootPath, string(os.PathSeparator))
	var candidates []candidate
	var timedDirs []string
	fo.collectCandidates(root, false, &candidates, &timedDirs)

	now := time.Now().UTC()
	cutoff := now.Add(-minAge)

	var totalBytes, preservedBytes int64
	var deletable []candidate
	for _, c := range candidates {
		totalBytes += c.size
		if minAge > 0 && !c.date.Before(cutoff) {
			preservedBytes += c.size
		} else {
			deletable = append(deletable, c)
		}
	}

	if maxTotalBytes > 0 && totalBytes > maxTotalBytes && len(deletable) > 0 {
		// Oldest first
		sort.SliceStable(deletable, func(i, j int) bool { return deletable[i].date.Before(deletable[j].date) })
		for _, c := range deletable {
			if totalBytes <= maxTotalBytes {
				break
			}
			if err := os.Remove(c.path); err != nil {
				fo.log.Warnf("housekeeping cannot delete '%s': %v", c.path, err)
				continue
			}
			totalBytes -= c.size
		}
	}

	for _, dir := range timedDirs {
		fo.removeIfEmpty(dir)
	}
	return nil
}

// collectCandidates gathers matching files from dir. Timed-named
// subdirectories are scanned one level deep; the Archive directory is the
// only one recursed through. Inside the archive, collision-resolved folder
// names (uuid suffixes) are accepted; at the root the match must be exact.
func (fo *FileOutput) collectCandidates(dir string, insideArchive bool, candidates *[]candidate, timedDirs *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			fo.log.Warnf("housekeeping cannot read '%s': %v", dir, err)
		}
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)

		if entry.IsDir() {
			if strings.EqualFold(name, archiveDirName) {
				fo.collectCandidates(path, true, candidates, timedDirs)
				continue
			}
			_, remainder, ok := TryMatch(name)
			if !ok || (!insideArchive && remainder != "") {
				continue
			}
			*timedDirs = append(*timedDirs, path)
			fo.collectTimedFolderFiles(path, candidates)
			continue
		}

		if date, size, ok := fo.matchCandidateFile(path, name, entry); ok {
			*candidates = append(*candidates, candidate{path: path, date: date, size: size})
		}
	}
}

// collectTimedFolderFiles scans the immediate files of one timed folder.
func (fo *FileOutput) collectTimedFolderFiles(dir string, candidates *[]candidate) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fo.log.Warnf("housekeeping cannot read '%s': %v", dir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if date, size, ok := fo.matchCandidateFile(path, entry.Name(), entry); ok {
			*candidates = append(*candidates, candidate{path: path, date: date, size: size})
		}
	}
}

// matchCandidateFile recognizes the temporary and final file patterns of
// this output. The currently open temp file is never a candidate.
func (fo *FileOutput) matchCandidateFile(path, name string, entry os.DirEntry) (time.Time, int64, bool) {
	var date time.Time
	switch {
	case strings.HasPrefix(name, tempPrefix):
		d, remainder, ok := TryMatch(name[len(tempPrefix):])
		if !ok || remainder != fo.fileNameSuffix+tempExtension {
			return time.Time{}, 0, false
		}
		if fo.outPath != "" && path == filepath.Clean(fo.outPath) {
			return time.Time{}, 0, false
		}
		date = d
	default:
		d, remainder, ok := TryMatch(name)
		if !ok || remainder != fo.fileNameSuffix {
			return time.Time{}, 0, false
		}
		date = d
	}

	info, err := entry.Info()
	if err != nil {
		fo.log.Warnf("housekeeping cannot stat '%s': %v", path, err)
		return time.Time{}, 0, false
	}
	return date, info.Size(), true
}

// removeIfEmpty deletes a timed folder that holds neither files nor
// subdirectories. Best effort; the folder may be the live base path of a
// concurrent run.
func (fo *FileOutput) removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		fo.log.Warnf("housekeeping cannot delete empty folder '%s': %v", dir, err)
	}
}
