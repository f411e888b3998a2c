package rotafile

import (
	"os"
)

// Reconfiguration carries optional new values; nil fields keep the current
// setting.
type Reconfiguration struct {
	FileNameSuffix            *string
	MaxCountPerFile           *int
	UseGzip                   *bool
	MaxCurrentLogFolderCount  *int
	MaxArchivedLogFolderCount *int
	LastRunFileName           *string // empty string disables the symlink
}

// Reconfigure applies new settings to a live output. Changing the suffix,
// the compression flag or the timed-folder mode closes the current file
// first; reducing the entry budget to or below what is already written does
// too.
// A timed-folder mode change re-runs Initialize to recompute the base
// path.
func (fo *FileOutput) Reconfigure(r Reconfiguration) error {
	if r.FileNameSuffix != nil && *r.FileNameSuffix == "" {
		return errorf("file name suffix cannot be empty")
	}
	if r.MaxCountPerFile != nil && *r.MaxCountPerFile <= 0 {
		return errorf("max count per file must be positive: %d", *r.MaxCountPerFile)
	}
	if r.MaxCurrentLogFolderCount != nil && *r.MaxCurrentLogFolderCount < 0 {
		return errorf("current folder count cannot be negative: %d", *r.MaxCurrentLogFolderCount)
	}
	if r.MaxArchivedLogFolderCount != nil && *r.MaxArchivedLogFolderCount < 0 {
		return errorf("archived folder count cannot be negative: %d", *r.MaxArchivedLogFolderCount)
	}

	suffixChanged := r.FileNameSuffix != nil && *r.FileNameSuffix != fo.fileNameSuffix
	gzipChanged := r.UseGzip != nil && *r.UseGzip != fo.useGzip
	timedModeChanged := r.MaxCurrentLogFolderCount != nil &&
		(*r.MaxCurrentLogFolderCount > 0) != fo.timedFolderMode

	written := fo.maxCountPerFile - fo.countRemainder
	budgetShrunk := r.MaxCountPerFile != nil && fo.out != nil && *r.MaxCountPerFile <= written

	if suffixChanged || gzipChanged || timedModeChanged || budgetShrunk {
		if _, err := fo.closeCurrentFile(false); err != nil {
			fo.log.Errorf("close during reconfiguration failed: %v", err)
		}
	}

	if r.FileNameSuffix != nil {
		fo.fileNameSuffix = *r.FileNameSuffix
	}
	if r.MaxCountPerFile != nil {
		fo.maxCountPerFile = *r.MaxCountPerFile
		if fo.out != nil {
			fo.countRemainder = *r.MaxCountPerFile - written
		}
	}
	if r.UseGzip != nil {
		fo.useGzip = *r.UseGzip
	}
	if r.MaxCurrentLogFolderCount != nil {
		fo.maxCurrentFolders = *r.MaxCurrentLogFolderCount
		fo.timedFolderMode = *r.MaxCurrentLogFolderCount > 0
	}
	if r.MaxArchivedLogFolderCount != nil {
		fo.maxArchivedFolders = *r.MaxArchivedLogFolderCount
	}
	if r.LastRunFileName != nil {
		if *r.LastRunFileName == "" && fo.withLastRunSymlink {
			if err := os.Remove(fo.lastRunFilePath); err != nil && !os.IsNotExist(err) {
				fo.log.Warnf("cannot delete last-run link '%s': %v", fo.lastRunFilePath, err)
			}
			fo.withLastRunSymlink = false
			fo.lastRunFileName = ""
			fo.lastRunFilePath = ""
		} else if *r.LastRunFileName != "" {
			fo.withLastRunSymlink = true
			fo.lastRunFileName = *r.LastRunFileName
			if fo.rootPath != "" {
				fo.lastRunFilePath = fo.rootPath + fo.lastRunFileName
			}
		}
	}

	if timedModeChanged {
		if !fo.timedFolderMode {
			fo.timedFolder = ""
		}
		if err := fo.Initialize(); err != nil {
			return err
		}
	}
	return nil
}

// MaxCurrentLogFolderCount reports the configured current-folder cap.
func (fo *FileOutput) MaxCurrentLogFolderCount() int {
	return fo.maxCurrentFolders
}

// MaxArchivedLogFolderCount reports the configured archive cap.
func (fo *FileOutput) MaxArchivedLogFolderCount() int {
	return fo.maxArchivedFolders
}
