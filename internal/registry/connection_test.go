package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubConn struct {
	id     string
	userID string
}

func (s stubConn) ConnectionID() string { return s.id }
func (s stubConn) UserID() string       { return s.userID }
func (s stubConn) Write(ctx context.Context, payload interface{}) error {
	return errors.New("not implemented")
}

func TestConnectionRegistryAddGetRemove(t *testing.T) {
	assert := assert.New(t)
	reg := NewConnectionRegistry()

	c := stubConn{id: "c1", userID: "u1"}
	features := reg.Add(c)
	assert.NotNil(features)

	handle, gotFeatures, ok := reg.Get("c1")
	assert.True(ok)
	assert.Equal(c, handle)
	assert.Equal(features, gotFeatures)

	_, _, ok = reg.Get("missing")
	assert.False(ok)

	removedHandle, removedFeatures, ok := reg.Remove("c1")
	assert.True(ok)
	assert.Equal(c, removedHandle)
	assert.Equal(features, removedFeatures)

	_, _, ok = reg.Get("c1")
	assert.False(ok)

	_, _, ok = reg.Remove("c1")
	assert.False(ok)
}

func TestConnectionRegistrySnapshotIsStable(t *testing.T) {
	assert := assert.New(t)
	reg := NewConnectionRegistry()
	reg.Add(stubConn{id: "c1"})
	reg.Add(stubConn{id: "c2"})

	snap := reg.Snapshot()
	assert.Len(snap, 2)

	reg.Add(stubConn{id: "c3"})
	assert.Len(snap, 2)
}
