package ember

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventPoolRoundTrip verifies acquire fills every field and release
// clears them for reuse.
func TestEventPoolRoundTrip(t *testing.T) {
	m := NewMonitor(nil)
	prev, next := m.nextLogTime()

	e := acquireEvent(m.ID(), next, prev, LevelWarn, TagInternal, "hello", "boom")
	assert.Equal(t, m.ID(), e.MonitorID())
	assert.Equal(t, next, e.LogTime())
	assert.Equal(t, prev, e.PreviousLogTime())
	assert.Equal(t, LevelWarn, e.Level())
	assert.Equal(t, TagInternal, e.Tags())
	assert.Equal(t, "hello", e.Text())
	assert.Equal(t, "boom", e.ExceptionData())

	e.Release()
	// Double release is tolerated
	e.Release()
}

// TestMonitorClockStrictlyIncreasing verifies the (prev, next) pair
// advances strictly even when called faster than the clock resolution.
func TestMonitorClockStrictlyIncreasing(t *testing.T) {
	m := NewMonitor(nil)

	var last time.Time
	for i := 0; i < 10000; i++ {
		prev, next := m.nextLogTime()
		require.True(t, next.After(prev), "iteration %d", i)
		if i > 0 {
			require.Equal(t, last, prev, "prev chains to the previous next")
			require.True(t, next.After(last), "iteration %d not strictly increasing", i)
		}
		last = next
	}
}

// TestMonitorSubmitFailureReleases verifies ownership returns to the
// producer on a refused submission, which the monitor resolves by
// releasing internally.
func TestMonitorSubmitFailureReleases(t *testing.T) {
	sink, _ := createTestSink(t, "a")
	require.NoError(t, sink.Stop(2*time.Second))

	m := NewMonitor(sink)
	// Must not leak or panic; the sink refuses and the monitor releases
	for i := 0; i < 100; i++ {
		m.Info("after shutdown", i)
	}
}

// TestTagSetOperations verifies overlap and union semantics.
func TestTagSetOperations(t *testing.T) {
	assert.True(t, (TagInternal | TagClose).Overlaps(TagClose))
	assert.False(t, TagInternal.Overlaps(TagClose))
	assert.True(t, (TagInternal | TagClose).Has(TagInternal|TagClose))
	assert.False(t, TagInternal.Has(TagInternal|TagClose))
	assert.Equal(t, TagInternal|TagIdentityFull, TagInternal.Union(TagIdentityFull))
	assert.False(t, TagNone.Overlaps(TagNone))
}
