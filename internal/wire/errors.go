package wire

import "errors"

// ErrMalformedFrame is returned when a wire frame cannot be decoded: a varint spans
// more bytes than allowed, a length-prefixed string is truncated or not valid UTF-8,
// or a frame is otherwise structurally invalid.
var ErrMalformedFrame = errors.New("malformed wire frame")

// ErrProtocolNotAvailable is returned by SerializationCache.GetEncoded when the cache
// has no source HubMessage (it was constructed from bytes) and the requested protocol
// name was not among the ones pre-encoded by the sender.
var ErrProtocolNotAvailable = errors.New("protocol not available for this message")

// ErrTooManyProtocols is returned by SerializationCache.WriteAllVersions when asked to
// write more than 255 protocol versions, since the wire format carries the count in a
// single byte.
var ErrTooManyProtocols = errors.New("too many protocol versions to encode")
