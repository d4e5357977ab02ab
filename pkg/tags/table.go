// Package tags stores deduplicated OSM tag sets referenced by arcs.
package tags

import (
	"strings"
	"sync"

	"github.com/paulmach/osm"
)

// Index resolves a tag reference to its key/value pairs.
type Index interface {
	Get(ref uint32) (osm.Tags, bool)
}

// Table is an in-memory, deduplicating tag set table. Reference 0 is the
// empty set and always present.
type Table struct {
	mu   sync.RWMutex
	sets []osm.Tags
	refs map[string]uint32
}

// NewTable returns a table holding only the empty set.
func NewTable() *Table {
	return &Table{
		sets: []osm.Tags{nil},
		refs: map[string]uint32{"": 0},
	}
}

// Add stores ts if it is not present yet and returns its reference.
func (t *Table) Add(ts osm.Tags) uint32 {
	k := key(ts)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ref, ok := t.refs[k]; ok {
		return ref
	}
	ref := uint32(len(t.sets))
	t.sets = append(t.sets, append(osm.Tags(nil), ts...))
	t.refs[k] = ref
	return ref
}

// Get implements Index.
func (t *Table) Get(ref uint32) (osm.Tags, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(ref) >= len(t.sets) {
		return nil, false
	}
	return t.sets[ref], true
}

// Len returns the number of sets including the empty set.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sets)
}

// Sets returns the sets in reference order.
func (t *Table) Sets() []osm.Tags {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]osm.Tags(nil), t.sets...)
}

func key(ts osm.Tags) string {
	var b strings.Builder
	for _, tag := range ts {
		b.WriteString(tag.Key)
		b.WriteByte(0)
		b.WriteString(tag.Value)
		b.WriteByte(0)
	}
	return b.String()
}
