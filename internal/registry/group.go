package registry

import (
	"sync"

	"github.com/alwitt/hublife/internal/broker"
)

// GroupEntry is the connection membership set for one group. Its mutex serializes
// membership changes against the subscribe/unsubscribe decision so a concurrent
// AddGroup and RemoveGroup can never both decide they own the broker subscription
// transition. An entry is never removed from the owning GroupRegistry once created,
// even after its membership drops back to zero; this keeps AddGroupCore's "raises
// count 0->1" check simple at the cost of holding one empty map entry per group name
// ever used.
type GroupEntry struct {
	sync.Mutex
	Connections map[string]ConnectionHandle
	// Sub is the broker subscription backing this group's channel while Connections
	// is non-empty. It is nil whenever the group has no local members. Callers must
	// hold the entry's lock while reading or writing it.
	Sub broker.Subscription
}

func newGroupEntry() *GroupEntry {
	return &GroupEntry{Connections: make(map[string]ConnectionHandle)}
}

// Snapshot returns the members of this group at the moment of the call. Callers doing
// a fan-out send take the snapshot once and iterate it outside the lock so a slow
// write to one connection cannot block AddGroup/RemoveGroup for the rest.
func (g *GroupEntry) Snapshot() []ConnectionHandle {
	g.Lock()
	defer g.Unlock()
	out := make([]ConnectionHandle, 0, len(g.Connections))
	for _, c := range g.Connections {
		out = append(out, c)
	}
	return out
}

// GroupRegistry is a concurrent map from broker group channel to GroupEntry.
type GroupRegistry struct {
	groups sync.Map // channel -> *GroupEntry
}

// NewGroupRegistry creates an empty registry.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{}
}

// GetOrCreate returns the entry for channel, creating an empty one if this is the
// first reference to it.
func (r *GroupRegistry) GetOrCreate(channel string) *GroupEntry {
	actual, _ := r.groups.LoadOrStore(channel, newGroupEntry())
	return actual.(*GroupEntry)
}

// Get looks up channel without creating it.
func (r *GroupRegistry) Get(channel string) (*GroupEntry, bool) {
	v, ok := r.groups.Load(channel)
	if !ok {
		return nil, false
	}
	return v.(*GroupEntry), true
}
