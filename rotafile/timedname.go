package rotafile

import (
	"sync"
	"time"
)

// Timed file names carry a fixed-width UTC timestamp with millisecond
// precision, sortable lexicographically: 20240131T153059123.
const (
	tokenTimeLayout = "20060102T150405"
	tokenLength     = len(tokenTimeLayout) + 3 // three millisecond digits
)

var (
	tokenMu   sync.Mutex
	lastStamp time.Time
)

// FormatToken renders t as a timed-name token. The time is truncated to
// millisecond precision in UTC.
func FormatToken(t time.Time) string {
	t = t.UTC().Truncate(time.Millisecond)
	buf := t.AppendFormat(make([]byte, 0, tokenLength), tokenTimeLayout)
	ms := t.Nanosecond() / int(time.Millisecond)
	buf = append(buf, byte('0'+ms/100), byte('0'+(ms/10)%10), byte('0'+ms%10))
	return string(buf)
}

// NextToken yields a strictly increasing timestamp and its token across
// calls within the process. Wall-clock regressions are absorbed by bumping
// one millisecond past the previous stamp.
func NextToken(now time.Time) (time.Time, string) {
	now = now.UTC().Truncate(time.Millisecond)

	tokenMu.Lock()
	if !now.After(lastStamp) {
		now = lastStamp.Add(time.Millisecond)
	}
	lastStamp = now
	tokenMu.Unlock()

	return now, FormatToken(now)
}

// TryMatch recognizes a timed-name token at the start of name. It returns
// the encoded UTC time and whatever follows the token. ok is false when
// the name does not start with a well-formed token.
func TryMatch(name string) (date time.Time, remainder string, ok bool) {
	if len(name) < tokenLength {
		return time.Time{}, "", false
	}
	for i := 0; i < tokenLength; i++ {
		c := name[i]
		if i == 8 {
			if c != 'T' {
				return time.Time{}, "", false
			}
			continue
		}
		if c < '0' || c > '9' {
			return time.Time{}, "", false
		}
	}

	base, err := time.ParseInLocation(tokenTimeLayout, name[:len(tokenTimeLayout)], time.UTC)
	if err != nil {
		return time.Time{}, "", false
	}
	ms := int(name[15]-'0')*100 + int(name[16]-'0')*10 + int(name[17]-'0')
	return base.Add(time.Duration(ms) * time.Millisecond), name[tokenLength:], true
}
