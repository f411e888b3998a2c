package rotafile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlog/ember"
)

// topLevel returns non-archive timed folder names and whether Archive/
// exists at the root.
func topLevel(t *testing.T, root string) (timed []string, hasArchive bool) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), archiveDirName) {
			hasArchive = true
			continue
		}
		if _, remainder, ok := TryMatch(entry.Name()); ok && remainder == "" {
			timed = append(timed, entry.Name())
		}
	}
	return timed, hasArchive
}

func archived(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, archiveDirName))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			if _, _, ok := TryMatch(entry.Name()); ok {
				names = append(names, entry.Name())
			}
		}
	}
	return names
}

// cycle deactivates and reactivates the output the way a handler
// lifecycle does, running the cleanup on activation.
func cycle(t *testing.T, fo *FileOutput, cfg CleanupConfig) {
	t.Helper()
	require.NoError(t, fo.Deactivate())
	require.NoError(t, fo.Initialize())
	require.NoError(t, fo.RunTimedFolderCleanup(cfg))
}

// TestTimedFolderPerActivation verifies each activation writes into its
// own timed folder and the rollover matches the lifecycle scenario: the
// third activation pushes the oldest folder into the archive.
func TestTimedFolderPerActivation(t *testing.T) {
	dir := t.TempDir()
	cleanup := CleanupConfig{MaxCurrentLogFolderCount: 2, MaxArchivedLogFolderCount: 5}
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1, MaxCurrentLogFolderCount: 2, MaxArchivedLogFolderCount: 5})
	require.NoError(t, fo.RunTimedFolderCleanup(cleanup))

	for i := 0; i < 5; i++ {
		require.NoError(t, fo.Write(&testEvent{text: fmt.Sprintf("entry %d", i)}))
	}

	timed, hasArchive := topLevel(t, dir)
	require.Len(t, timed, 1)
	assert.False(t, hasArchive)
	finals, _ := listFiles(t, filepath.Join(dir, timed[0]))
	assert.GreaterOrEqual(t, len(finals), 5)

	// Second activation: a fresh folder, still under the cap
	cycle(t, fo, cleanup)
	require.NoError(t, fo.Write(&testEvent{text: "second life"}))
	timed, hasArchive = topLevel(t, dir)
	assert.Len(t, timed, 2)
	assert.False(t, hasArchive)

	// Third activation: the oldest folder rolls into the archive
	oldest := timed[0]
	if timed[1] < oldest {
		oldest = timed[1]
	}
	cycle(t, fo, cleanup)
	require.NoError(t, fo.Write(&testEvent{text: "third life"}))

	timed, hasArchive = topLevel(t, dir)
	assert.Len(t, timed, 2)
	assert.True(t, hasArchive)
	arch := archived(t, dir)
	require.Len(t, arch, 1)
	assert.Equal(t, oldest, arch[0])
}

// TestArchiveCap verifies the archive prunes to its cap, oldest first,
// across many activations.
func TestArchiveCap(t *testing.T) {
	dir := t.TempDir()
	cleanup := CleanupConfig{MaxCurrentLogFolderCount: 2, MaxArchivedLogFolderCount: 5}
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1, MaxCurrentLogFolderCount: 2, MaxArchivedLogFolderCount: 5})
	require.NoError(t, fo.RunTimedFolderCleanup(cleanup))
	require.NoError(t, fo.Write(&testEvent{text: "x"}))

	for i := 0; i < 10; i++ {
		cycle(t, fo, cleanup)
		require.NoError(t, fo.Write(&testEvent{text: "x"}))
	}

	timed, _ := topLevel(t, dir)
	assert.Len(t, timed, 2)
	assert.LessOrEqual(t, len(archived(t, dir)), 5)

	for i := 0; i < 4; i++ {
		cycle(t, fo, cleanup)
		require.NoError(t, fo.Write(&testEvent{text: "x"}))
	}
	assert.LessOrEqual(t, len(archived(t, dir)), 5, "archive stays capped")
}

// TestArchiveMoveCollision verifies a same-named folder already in the
// archive forces a uuid-suffixed move target.
func TestArchiveMoveCollision(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1})

	// Fabricate aged timed folders and a colliding archive entry
	tokens := make([]string, 3)
	base := time.Now().UTC().Add(-time.Hour)
	for i := range tokens {
		tokens[i] = FormatToken(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, tokens[i]), 0755))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, archiveDirName, tokens[0]), 0755))

	require.NoError(t, fo.RunTimedFolderCleanup(CleanupConfig{MaxCurrentLogFolderCount: 2}))

	arch := archived(t, dir)
	var collisionResolved bool
	for _, name := range arch {
		if strings.HasPrefix(name, tokens[0]+"-") && len(name) > len(tokens[0])+1 {
			collisionResolved = true
		}
	}
	assert.True(t, collisionResolved, "colliding move got a uuid suffix, archive: %v", arch)
}

// TestCleanupDisabled verifies a zero cap leaves everything alone.
func TestCleanupDisabled(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1})

	for i := 0; i < 3; i++ {
		token := FormatToken(time.Now().UTC().Add(time.Duration(-i) * time.Minute))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, token), 0755))
	}

	require.NoError(t, fo.RunTimedFolderCleanup(CleanupConfig{}))
	timed, hasArchive := topLevel(t, dir)
	assert.Len(t, timed, 3)
	assert.False(t, hasArchive)
}

// TestCleanupIgnoresForeignDirectories verifies only exact timed names
// participate at the root.
func TestCleanupIgnoresForeignDirectories(t *testing.T) {
	dir := t.TempDir()
	fo := newTestOutput(t, Config{Path: dir, MaxCountPerFile: 1})

	suffixed := FormatToken(time.Now().UTC()) + "-suffixed"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-timed-folder"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, suffixed), 0755))

	require.NoError(t, fo.RunTimedFolderCleanup(CleanupConfig{MaxCurrentLogFolderCount: 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.Contains(t, names, "not-a-timed-folder")
	assert.Contains(t, names, suffixed, "suffixed names stay at the root")
}

var _ ember.Event = (*testEvent)(nil)
