package formatter

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 1, 31, 15, 30, 59, 0, time.UTC)

// TestFormatTxt verifies the line layout.
func TestFormatTxt(t *testing.T) {
	f := New().TimestampFormat(time.RFC3339)

	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name:  "plain",
			entry: Entry{Time: testTime, Level: "INFO", Monitor: "a1b2c3d4", Text: "hello"},
			want:  "2024-01-31T15:30:59Z INFO [a1b2c3d4] hello\n",
		},
		{
			name:  "no monitor",
			entry: Entry{Time: testTime, Level: "WARN", Text: "bare"},
			want:  "2024-01-31T15:30:59Z WARN bare\n",
		},
		{
			name:  "with exception",
			entry: Entry{Time: testTime, Level: "ERROR", Monitor: "a1b2c3d4", Text: "boom", Exception: "stack trace"},
			want:  "2024-01-31T15:30:59Z ERROR [a1b2c3d4] boom\n\tstack trace\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(f.Format(tt.entry)))
		})
	}
}

// TestFormatJSON verifies the object decodes with the expected fields.
func TestFormatJSON(t *testing.T) {
	f := New().Type("json").TimestampFormat(time.RFC3339)

	line := f.Format(Entry{Time: testTime, Level: "ERROR", Monitor: "a1b2c3d4", Text: "boom", Exception: "trace"})

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "2024-01-31T15:30:59Z", decoded["time"])
	assert.Equal(t, "ERROR", decoded["level"])
	assert.Equal(t, "a1b2c3d4", decoded["monitor"])
	assert.Equal(t, "boom", decoded["msg"])
	assert.Equal(t, "trace", decoded["exception"])
}

// TestFormatSanitizesControlCharacters verifies hostile text cannot break
// the line structure.
func TestFormatSanitizesControlCharacters(t *testing.T) {
	f := New().TimestampFormat(time.RFC3339)

	out := string(f.Format(Entry{Time: testTime, Level: "INFO", Text: "a\x00b\nc"}))
	assert.Contains(t, out, "a<00>b<0a>c")
	assert.Equal(t, 1, countNewlines(out), "one line per entry")
}

func countNewlines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

// TestFormatArgs verifies scalar rendering and the structured fallback.
func TestFormatArgs(t *testing.T) {
	assert.Equal(t, "hello 42 3.5 true nil", string(FormatArgs("hello", 42, 3.5, true, nil)))
	assert.Equal(t, "deadline exceeded", string(FormatArgs(errors.New("deadline exceeded"))))
	assert.Equal(t, "1m0s", string(FormatArgs(time.Minute)))

	type payload struct {
		Name  string
		Count int
	}
	dump := string(FormatArgs(payload{Name: "x", Count: 3}))
	assert.Contains(t, dump, "Name")
	assert.Contains(t, dump, "Count")
}

// TestFormatterBufferReuse verifies consecutive calls do not corrupt each
// other's output when copied out before the next call.
func TestFormatterBufferReuse(t *testing.T) {
	f := New().TimestampFormat(time.RFC3339)

	first := string(f.Format(Entry{Time: testTime, Level: "INFO", Text: "first"}))
	second := string(f.Format(Entry{Time: testTime, Level: "INFO", Text: "second"}))
	assert.Contains(t, first, "first")
	assert.Contains(t, second, "second")
}
