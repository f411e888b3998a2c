// Package formatter renders log entries into their textual encodings. It
// deliberately knows nothing about the sink; handlers pass entry fields
// explicitly so the package stays import-light.
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/emberlog/ember/sanitizer"
)

// Entry is the flattened view of one event handed to the formatter.
type Entry struct {
	Time      time.Time
	Level     string
	Monitor   string // short producer identifier
	Text      string
	Exception string
}

// Formatter manages the buffered writing and formatting of log entries.
// Not safe for concurrent use; each handler owns one.
type Formatter struct {
	san             *sanitizer.Sanitizer
	format          string
	timestampFormat string
	buf             []byte
}

// New creates a formatter with txt output and hex-encoding sanitization.
func New(s ...*sanitizer.Sanitizer) *Formatter {
	var san *sanitizer.Sanitizer
	if len(s) > 0 && s[0] != nil {
		san = s[0]
	} else {
		san = sanitizer.New(sanitizer.ModeHexEncode)
	}
	return &Formatter{
		san:             san,
		format:          "txt",
		timestampFormat: time.RFC3339Nano,
		buf:             make([]byte, 0, 1024),
	}
}

// Type sets the output format ("txt" or "json").
func (f *Formatter) Type(format string) *Formatter {
	f.format = format
	return f
}

// TimestampFormat sets the timestamp format string.
func (f *Formatter) TimestampFormat(format string) *Formatter {
	if format != "" {
		f.timestampFormat = format
	}
	return f
}

// Format renders one entry, newline-terminated. The returned slice is
// valid until the next call.
func (f *Formatter) Format(e Entry) []byte {
	f.buf = f.buf[:0]
	if f.format == "json" {
		return f.formatJSON(e)
	}
	return f.formatTxt(e)
}

// formatTxt renders "time LEVEL [monitor] text" with the exception
// indented on a continuation line.
func (f *Formatter) formatTxt(e Entry) []byte {
	f.buf = e.Time.AppendFormat(f.buf, f.timestampFormat)
	f.buf = append(f.buf, ' ')
	f.buf = append(f.buf, e.Level...)
	if e.Monitor != "" {
		f.buf = append(f.buf, " ["...)
		f.buf = append(f.buf, e.Monitor...)
		f.buf = append(f.buf, ']')
	}
	f.buf = append(f.buf, ' ')
	f.buf = append(f.buf, f.san.Sanitize(e.Text)...)
	if e.Exception != "" {
		f.buf = append(f.buf, "\n\t"...)
		f.buf = append(f.buf, f.san.Sanitize(e.Exception)...)
	}
	f.buf = append(f.buf, '\n')
	return f.buf
}

// formatJSON renders one entry as a single-line JSON object.
func (f *Formatter) formatJSON(e Entry) []byte {
	f.buf = append(f.buf, `{"time":`...)
	f.buf = appendJSONString(f.buf, e.Time.Format(f.timestampFormat))
	f.buf = append(f.buf, `,"level":`...)
	f.buf = appendJSONString(f.buf, e.Level)
	if e.Monitor != "" {
		f.buf = append(f.buf, `,"monitor":`...)
		f.buf = appendJSONString(f.buf, e.Monitor)
	}
	f.buf = append(f.buf, `,"msg":`...)
	f.buf = appendJSONString(f.buf, f.san.Sanitize(e.Text))
	if e.Exception != "" {
		f.buf = append(f.buf, `,"exception":`...)
		f.buf = appendJSONString(f.buf, f.san.Sanitize(e.Exception))
	}
	f.buf = append(f.buf, '}', '\n')
	return f.buf
}

func appendJSONString(buf []byte, s string) []byte {
	encoded, err := json.Marshal(s)
	if err != nil {
		return append(buf, `""`...)
	}
	return append(buf, encoded...)
}

// FormatArgs converts a variadic argument list to one space-separated
// string, the way producers compose message text. Scalar types render
// plainly; everything else falls back to a compact spew dump so structs
// and maps stay readable without custom Stringers.
func FormatArgs(args ...any) []byte {
	var buf []byte
	for i, arg := range args {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = appendValue(buf, arg)
	}
	return buf
}

// spewConfig is the compact dumper used for unsupported types.
var spewConfig = &spew.ConfigState{
	Indent:                  " ",
	MaxDepth:                10,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func appendValue(buf []byte, v any) []byte {
	switch val := v.(type) {
	case string:
		return append(buf, val...)
	case int:
		return strconv.AppendInt(buf, int64(val), 10)
	case int32:
		return strconv.AppendInt(buf, int64(val), 10)
	case int64:
		return strconv.AppendInt(buf, val, 10)
	case uint:
		return strconv.AppendUint(buf, uint64(val), 10)
	case uint32:
		return strconv.AppendUint(buf, uint64(val), 10)
	case uint64:
		return strconv.AppendUint(buf, val, 10)
	case float32:
		return strconv.AppendFloat(buf, float64(val), 'f', -1, 32)
	case float64:
		return strconv.AppendFloat(buf, val, 'f', -1, 64)
	case bool:
		return strconv.AppendBool(buf, val)
	case nil:
		return append(buf, "nil"...)
	case time.Duration:
		return append(buf, val.String()...)
	case time.Time:
		return val.AppendFormat(buf, time.RFC3339Nano)
	case error:
		return append(buf, val.Error()...)
	case fmt.Stringer:
		return append(buf, val.String()...)
	case []byte:
		return append(buf, val...)
	default:
		var b bytes.Buffer
		spewConfig.Fdump(&b, v)
		return append(buf, bytes.TrimRight(b.Bytes(), "\n")...)
	}
}
