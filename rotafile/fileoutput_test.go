package rotafile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlog/ember"
)

const testSuffix = ".ember.log"

// testEvent is a minimal ember.Event for engine tests.
type testEvent struct {
	text string
}

func (e *testEvent) MonitorID() uuid.UUID       { return uuid.UUID{} }
func (e *testEvent) LogTime() time.Time         { return time.Now().UTC() }
func (e *testEvent) PreviousLogTime() time.Time { return time.Time{} }
func (e *testEvent) Level() int64               { return 0 }
func (e *testEvent) Tags() ember.TagSet         { return 0 }
func (e *testEvent) Text() string               { return e.text }
func (e *testEvent) ExceptionData() string      { return "" }
func (e *testEvent) Release()                   {}

// lineWriter is the plain one-line-per-entry test codec.
func lineWriter(w io.Writer, e ember.Event) error {
	_, err := fmt.Fprintln(w, e.Text())
	return err
}

func newTestOutput(t *testing.T, cfg Config) *FileOutput {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = t.TempDir()
	}
	if cfg.FileNameSuffix == "" {
		cfg.FileNameSuffix = testSuffix
	}
	if cfg.MaxCountPerFile == 0 {
		cfg.MaxCountPerFile = 10
	}
	fo, err := NewFileOutput(cfg, lineWriter, nil)
	require.NoError(t, err)
	require.NoError(t, fo.Initialize())
	return fo
}

// listFiles returns finalized and temp file names in dir.
func listFiles(t *testing.T, dir string) (finals, temps []string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempExtension) {
			temps = append(temps, name)
		} else if _, remainder, ok := TryMatch(name); ok && remainder == testSuffix {
			finals = append(finals, name)
		}
	}
	sort.Strings(finals)
	return finals, temps
}

// TestNewFileOutputValidation exercises the synchronous argument checks.
func TestNewFileOutputValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty path", Config{FileNameSuffix: testSuffix, MaxCountPerFile: 1}},
		{"empty suffix", Config{Path: "x", MaxCountPerFile: 1}},
		{"zero count", Config{Path: "x", FileNameSuffix: testSuffix}},
		{"negative folders", Config{Path: "x", FileNameSuffix: testSuffix, MaxCountPerFile: 1, MaxCurrentLogFolderCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileOutput(tt.cfg, lineWriter, nil)
			assert.Error(t, err)
		})
	}

	_, err := NewFileOutput(Config{Path: "x", FileNameSuffix: testSuffix, MaxCountPerFile: 1}, nil, nil)
	assert.Error(t, err, "nil codec")
}

// TestWriteBeforeInitialize verifies the write contract.
func TestWriteBeforeInitialize(t *testing.T) {
	fo, err := NewFileOutput(Config{Path: t.TempDir(), FileNameSuffix: testSuffix, MaxCountPerFile: 1}, lineWriter, nil)
	require.NoError(t, err)
	assert.Error(t, fo.Write(&testEvent{text: "early"}))
}

// TestRotationPerEntry verifies one finalized file per entry at
// max_count_per_file=1, with sortable names and no leftover temp files.
func TestRotationPerEntry(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1})

	for i := 0; i < 5; i++ {
		require.NoError(t, fo.Write(&testEvent{text: fmt.Sprintf("entry %d", i)}))
	}

	finals, temps := listFiles(t, dir)
	assert.Len(t, finals, 5)
	assert.Empty(t, temps)
	assert.True(t, sort.StringsAreSorted(finals))

	// Entry order is recoverable from the sorted names
	for i, name := range finals {
		content, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("entry %d\n", i), string(content))
	}
}

// TestRotationCount verifies ⌈entries/max⌉ finalized files plus the open
// remainder.
func TestRotationCount(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 3})

	for i := 0; i < 7; i++ {
		require.NoError(t, fo.Write(&testEvent{text: fmt.Sprintf("entry %d", i)}))
	}

	finals, temps := listFiles(t, dir)
	assert.Len(t, finals, 2, "two full rotations")
	assert.Len(t, temps, 1, "one open file with the remainder")

	final, err := fo.Close(false)
	require.NoError(t, err)
	require.NotEmpty(t, final)

	finals, temps = listFiles(t, dir)
	assert.Len(t, finals, 3)
	assert.Empty(t, temps)
}

// TestOpenFileInvariant verifies at most one temp file exists at any time.
func TestOpenFileInvariant(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 2})

	for i := 0; i < 9; i++ {
		require.NoError(t, fo.Write(&testEvent{text: "x"}))
		_, temps := listFiles(t, dir)
		assert.LessOrEqual(t, len(temps), 1, "after write %d", i)
	}
}

// TestCloseForgetDeletesTemp verifies a forgotten rotation produces no
// file.
func TestCloseForgetDeletesTemp(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 10})

	require.NoError(t, fo.Write(&testEvent{text: "discarded"}))
	final, err := fo.Close(true)
	require.NoError(t, err)
	assert.Empty(t, final)

	finals, temps := listFiles(t, dir)
	assert.Empty(t, finals)
	assert.Empty(t, temps)
}

// TestCloseWithoutOpenFile verifies close is a no-op when nothing is open.
func TestCloseWithoutOpenFile(t *testing.T) {
	fo := newTestOutput(t, Config{})
	final, err := fo.Close(false)
	require.NoError(t, err)
	assert.Empty(t, final)
}

// TestFinalizedNameMatchesToken verifies the finalized name decodes back
// to a token (testable property 3).
func TestFinalizedNameMatchesToken(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1})

	// Wide window: the token clock may run slightly ahead of wall time
	// after collision bumps elsewhere in the process
	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, fo.Write(&testEvent{text: "x"}))
	after := time.Now().UTC().Add(10 * time.Second)

	finals, _ := listFiles(t, dir)
	require.Len(t, finals, 1)
	date, remainder, ok := TryMatch(finals[0])
	require.True(t, ok)
	assert.Equal(t, testSuffix, remainder)
	assert.True(t, date.After(before) && date.Before(after), "token time %v in [%v, %v]", date, before, after)
}

// TestGzipRoundTrip verifies decompressing a finalized gzip file yields
// the bytes written during the rotation.
func TestGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 3, UseGzip: true})

	var want strings.Builder
	for i := 0; i < 3; i++ {
		text := fmt.Sprintf("compressed entry %d", i)
		require.NoError(t, fo.Write(&testEvent{text: text}))
		want.WriteString(text + "\n")
	}

	finals, temps := listFiles(t, dir)
	require.Len(t, finals, 1)
	assert.Empty(t, temps, "temp deleted after successful compression")

	f, err := os.Open(filepath.Join(dir, finals[0]))
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(content))
}

// TestLastRunSymlink verifies the link tracks the most recent finalized
// file.
func TestLastRunSymlink(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1, LastRunFileName: "LastRun.log"})

	require.NoError(t, fo.Write(&testEvent{text: "first"}))
	linkPath := filepath.Join(dir, "LastRun.log")

	info, err := os.Lstat(linkPath)
	if err != nil {
		t.Skipf("symbolic links unavailable: %v", err)
	}
	require.NotZero(t, info.Mode()&os.ModeSymlink)

	require.NoError(t, fo.Write(&testEvent{text: "second"}))
	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(content))
}

// TestReconfigureClosesOnSuffixChange verifies a suffix change finalizes
// the current file and later files carry the new suffix.
func TestReconfigureClosesOnSuffixChange(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 10})

	require.NoError(t, fo.Write(&testEvent{text: "old suffix"}))

	newSuffix := ".other.log"
	require.NoError(t, fo.Reconfigure(Reconfiguration{FileNameSuffix: &newSuffix}))

	finals, temps := listFiles(t, dir)
	assert.Len(t, finals, 1, "open file finalized under the old suffix")
	assert.Empty(t, temps)

	require.NoError(t, fo.Write(&testEvent{text: "new suffix"}))
	require.NoError(t, fo.Deactivate())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	found := false
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), newSuffix) {
			found = true
		}
	}
	assert.True(t, found, "file produced under the new suffix")
}

// TestReconfigureBudgetShrink verifies reducing max_count_per_file below
// the written count closes the file.
func TestReconfigureBudgetShrink(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 10})

	for i := 0; i < 3; i++ {
		require.NoError(t, fo.Write(&testEvent{text: "x"}))
	}

	two := 2
	require.NoError(t, fo.Reconfigure(Reconfiguration{MaxCountPerFile: &two}))

	finals, temps := listFiles(t, dir)
	assert.Len(t, finals, 1)
	assert.Empty(t, temps)

	// Budget that still fits stays open, with the remainder adjusted
	require.NoError(t, fo.Write(&testEvent{text: "y"}))
	five := 5
	require.NoError(t, fo.Reconfigure(Reconfiguration{MaxCountPerFile: &five}))
	_, temps = listFiles(t, dir)
	assert.Len(t, temps, 1)
}

// TestReconfigureDisableSymlink verifies disabling removes the existing
// link.
func TestReconfigureDisableSymlink(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1, LastRunFileName: "LastRun.log"})

	require.NoError(t, fo.Write(&testEvent{text: "x"}))
	linkPath := filepath.Join(dir, "LastRun.log")
	if _, err := os.Lstat(linkPath); err != nil {
		t.Skipf("symbolic links unavailable: %v", err)
	}

	none := ""
	require.NoError(t, fo.Reconfigure(Reconfiguration{LastRunFileName: &none}))
	_, err := os.Lstat(linkPath)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, fo.Write(&testEvent{text: "y"}))
	_, err = os.Lstat(linkPath)
	assert.True(t, os.IsNotExist(err), "no link recreated after disabling")
}

// TestDeactivateReinitializeFlat verifies the root path is reused across
// a deactivate/initialize cycle in flat mode.
func TestDeactivateReinitializeFlat(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1})

	require.NoError(t, fo.Write(&testEvent{text: "before"}))
	root := fo.RootPath()
	require.NoError(t, fo.Deactivate())
	assert.Empty(t, fo.BasePath())

	require.NoError(t, fo.Initialize())
	assert.Equal(t, root, fo.RootPath())
	require.NoError(t, fo.Write(&testEvent{text: "after"}))

	finals, _ := listFiles(t, dir)
	assert.Len(t, finals, 2)
}
