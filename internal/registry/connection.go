// Package registry implements the local connection registry and group registry: the
// process-scoped state the lifetime manager consults to decide whether a target is
// reachable without going through the broker.
package registry

import (
	"context"
	"sync"
)

// ConnectionHandle is the external, transport-owned connection object the lifetime
// manager writes to. It is a shared reference: the transport owns its lifecycle, the
// manager only holds it while the connection is registered.
type ConnectionHandle interface {
	// ConnectionID is the server-assigned opaque ID unique to this connection.
	ConnectionID() string
	// UserID is the application-supplied user identifier, or "" if none.
	UserID() string
	// Write delivers payload to the client this handle represents. payload is either
	// a wire.HubMessage (the local short-circuit in SendConnection hands the message
	// straight through, bypassing serialization) or a *wire.SerializationCache (every
	// other fan-out path, letting the implementation call cache.GetEncoded with
	// whichever HubProtocol this connection negotiated at handshake). Implementations
	// should type-switch on payload and return an error for any other type.
	Write(ctx context.Context, payload interface{}) error
}

type connectionRecord struct {
	handle   ConnectionHandle
	features *FeatureBag
}

// Entry is one row of a ConnectionRegistry snapshot.
type Entry struct {
	Handle   ConnectionHandle
	Features *FeatureBag
}

// ConnectionRegistry is a concurrent map from connectionID to the locally terminated
// connection handle plus its feature bag. At most one handle is registered per
// connectionID on a given server.
type ConnectionRegistry struct {
	conns sync.Map // connectionID -> *connectionRecord
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{}
}

// Add registers handle and installs a fresh feature bag for it.
func (r *ConnectionRegistry) Add(handle ConnectionHandle) *FeatureBag {
	features := NewFeatureBag()
	r.conns.Store(handle.ConnectionID(), &connectionRecord{handle: handle, features: features})
	return features
}

// Remove deregisters connectionID, returning its handle and feature bag if it was
// present.
func (r *ConnectionRegistry) Remove(connectionID string) (ConnectionHandle, *FeatureBag, bool) {
	v, ok := r.conns.LoadAndDelete(connectionID)
	if !ok {
		return nil, nil, false
	}
	rec := v.(*connectionRecord)
	return rec.handle, rec.features, true
}

// Get looks up connectionID.
func (r *ConnectionRegistry) Get(connectionID string) (ConnectionHandle, *FeatureBag, bool) {
	v, ok := r.conns.Load(connectionID)
	if !ok {
		return nil, nil, false
	}
	rec := v.(*connectionRecord)
	return rec.handle, rec.features, true
}

// Snapshot returns every currently registered connection. Used by SendAll-style
// fan-out so the iteration is stable against concurrent connect/disconnect.
func (r *ConnectionRegistry) Snapshot() []Entry {
	var out []Entry
	r.conns.Range(func(_, v interface{}) bool {
		rec := v.(*connectionRecord)
		out = append(out, Entry{Handle: rec.handle, Features: rec.features})
		return true
	})
	return out
}
