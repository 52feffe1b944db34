package hublife

import (
	"encoding/json"

	"github.com/alwitt/hublife/internal/wire"
)

// DefaultJSONProtocol is the baseline HubProtocol every server bootstraps with when no
// application-specific protocol is configured. It encodes a HubMessage as plain JSON.
type DefaultJSONProtocol struct{}

// Name identifies this protocol on the wire.
func (DefaultJSONProtocol) Name() string { return "json" }

// Encode marshals msg as JSON.
func (DefaultJSONProtocol) Encode(msg wire.HubMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode unmarshals data produced by Encode back into a HubMessage. Connection
// implementations that negotiated this protocol call Decode after
// SerializationCache.GetEncoded.
func (DefaultJSONProtocol) Decode(data []byte) (wire.HubMessage, error) {
	var msg wire.HubMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
