package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupRegistryGetOrCreateIsIdempotent(t *testing.T) {
	assert := assert.New(t)
	reg := NewGroupRegistry()

	entry := reg.GetOrCreate("hub:g:room1")
	again := reg.GetOrCreate("hub:g:room1")
	assert.Same(entry, again)

	_, ok := reg.Get("hub:g:missing")
	assert.False(ok)
	found, ok := reg.Get("hub:g:room1")
	assert.True(ok)
	assert.Same(entry, found)
}

func TestGroupEntrySnapshotReflectsMembership(t *testing.T) {
	assert := assert.New(t)
	entry := newGroupEntry()

	c1 := stubConn{id: "c1"}
	c2 := stubConn{id: "c2"}
	entry.Lock()
	entry.Connections[c1.ConnectionID()] = c1
	entry.Connections[c2.ConnectionID()] = c2
	entry.Unlock()

	snap := entry.Snapshot()
	assert.Len(snap, 2)

	entry.Lock()
	delete(entry.Connections, c1.ConnectionID())
	entry.Unlock()

	assert.Len(entry.Snapshot(), 1)
}

func TestGroupEntryRetainedAfterEmptying(t *testing.T) {
	assert := assert.New(t)
	reg := NewGroupRegistry()
	entry := reg.GetOrCreate("hub:g:room1")

	entry.Lock()
	entry.Connections["c1"] = stubConn{id: "c1"}
	entry.Unlock()

	entry.Lock()
	delete(entry.Connections, "c1")
	entry.Unlock()

	// A group entry is never removed once created, even after its membership empties.
	again, ok := reg.Get("hub:g:room1")
	assert.True(ok)
	assert.Same(entry, again)
}
