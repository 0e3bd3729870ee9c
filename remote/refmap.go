package remote

import (
	"sort"

	"github.com/tliron/commonlog"
)

// RefMap maps object origin addresses to their references. The runtime has
// no ambient GC to lean on, so the weak behavior of the original is made
// explicit: dead references stay in the map until SweepDead drops them.
//
// Overwriting an entry is almost always a bookkeeping error and is logged,
// but tolerated: a reclaimed area can legitimately be re-used for a fresh
// object at an address still present in the map.
type RefMap struct {
	entries map[Address]*Reference
	log     commonlog.Logger
}

// NewRefMap returns an empty map.
func NewRefMap() *RefMap {
	return &RefMap{
		entries: make(map[Address]*Reference),
		log:     commonlog.GetLogger("tern.remote"),
	}
}

// Put adds a reference at an origin. origin must be non-zero.
func (m *RefMap) Put(origin Address, ref *Reference) {
	if origin.IsZero() {
		panic("remote: zero origin in reference map")
	}
	if old, ok := m.entries[origin]; ok && old != ref && !old.Status().IsDead() {
		m.log.Warningf("replacing reference already in map at %s: %s", origin, old)
	}
	m.entries[origin] = ref
}

// Get returns the reference at an origin, or nil.
func (m *RefMap) Get(origin Address) *Reference {
	return m.entries[origin]
}

// Remove deletes and returns the reference at an origin, or nil.
func (m *RefMap) Remove(origin Address) *Reference {
	ref := m.entries[origin]
	delete(m.entries, origin)
	return ref
}

// Values returns the references in ascending origin order.
func (m *RefMap) Values() []*Reference {
	origins := make([]Address, 0, len(m.entries))
	for origin := range m.entries {
		origins = append(origins, origin)
	}
	sort.Slice(origins, func(i, j int) bool { return origins[i] < origins[j] })
	values := make([]*Reference, len(origins))
	for i, origin := range origins {
		values[i] = m.entries[origin]
	}
	return values
}

// Size returns the number of entries, dead ones included.
func (m *RefMap) Size() int { return len(m.entries) }

// IsEmpty reports whether the map has no entries at all.
func (m *RefMap) IsEmpty() bool { return len(m.entries) == 0 }

// Clear removes every entry.
func (m *RefMap) Clear() {
	m.entries = make(map[Address]*Reference)
}

// SweepDead drops every dead reference and returns how many were removed.
func (m *RefMap) SweepDead() int {
	n := 0
	for origin, ref := range m.entries {
		if ref.Status().IsDead() {
			delete(m.entries, origin)
			n++
		}
	}
	return n
}
