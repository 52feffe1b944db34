package hublife

import (
	"github.com/alwitt/hublife/internal/registry"
	"github.com/alwitt/hublife/internal/wire"
)

// HubMessage is the payload of an invocation: a target method name plus an opaque
// argument array. See wire.HubMessage.
type HubMessage = wire.HubMessage

// HubProtocol encodes a HubMessage into one application-level wire format. Callers
// supply one implementation per protocol they want the manager to fan out.
type HubProtocol = wire.HubProtocol

// ConnectionHandle is the transport-owned handle to one sticky client connection.
// The transport implements this and passes it to OnConnected/OnDisconnected; the
// manager never constructs one itself. See registry.ConnectionHandle.
type ConnectionHandle = registry.ConnectionHandle
