package group

import (
	"sync"

	"github.com/datatrails/groveauth/access"
)

// Directory resolves a nested GroupMember's id to its live State, the
// registry that makes transitive group membership possible (spec
// §4.8 "Nested groups"). A single Directory is typically shared by
// every Group a local peer participates in.
type Directory[C access.Condition[C]] struct {
	mu     sync.Mutex
	groups map[ID]*State[C]
}

// NewDirectory creates an empty Directory.
func NewDirectory[C access.Condition[C]]() *Directory[C] {
	return &Directory[C]{groups: make(map[ID]*State[C])}
}

// Register makes s resolvable by its own id as a potential nested
// group member. It is a no-op if s's Create has not yet been applied
// (its id is still zero).
func (d *Directory[C]) Register(s *State[C]) {
	id := s.ID()
	if id.IsZero() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[id] = s
}

// Lookup returns the State registered for id, if any.
func (d *Directory[C]) Lookup(id ID) (*State[C], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.groups[id]
	return s, ok
}
