package ember

import (
	"encoding/json"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// IdentityCard holds process-level metadata. The sink broadcasts the full
// card as a tagged event on startup; producers extend it at runtime through
// events carrying TagIdentityUpdate.
type IdentityCard struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewIdentityCard creates a card pre-filled with process facts.
func NewIdentityCard() *IdentityCard {
	card := &IdentityCard{
		m: make(map[string]string),
	}
	host, _ := os.Hostname()
	card.m["hostname"] = host
	card.m["pid"] = strconv.Itoa(os.Getpid())
	card.m["go_version"] = runtime.Version()
	card.m["os"] = runtime.GOOS
	card.m["arch"] = runtime.GOARCH
	if len(os.Args) > 0 {
		card.m["command"] = os.Args[0]
	}
	return card
}

// Merge folds fragment into the card. Returns true when at least one key
// was added or changed.
func (c *IdentityCard) Merge(fragment map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for k, v := range fragment {
		if k == "" {
			continue
		}
		if cur, ok := c.m[k]; !ok || cur != v {
			c.m[k] = v
			changed = true
		}
	}
	return changed
}

// Get returns a single card entry.
func (c *IdentityCard) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

// Snapshot returns a copy of the card contents.
func (c *IdentityCard) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// FullText encodes the card as a JSON object with sorted keys.
func (c *IdentityCard) FullText() string {
	snap := c.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(snap[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// decodeIdentityPayload parses an identity-update payload: a flat JSON
// object of string keys and values.
func decodeIdentityPayload(text string) (map[string]string, error) {
	var fragment map[string]string
	if err := json.Unmarshal([]byte(text), &fragment); err != nil {
		return nil, fmtErrorf("invalid identity payload: %w", err)
	}
	if len(fragment) == 0 {
		return nil, fmtErrorf("empty identity payload")
	}
	return fragment, nil
}
