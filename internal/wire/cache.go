package wire

import (
	"bufio"
	"fmt"
	"io"
)

// HubMessage is the payload of an Invocation: a target method name plus an argument
// array. The core never inspects Arguments; it is opaque data handed to a HubProtocol
// for encoding.
type HubMessage struct {
	Target    string
	Arguments []interface{}
}

// HubProtocol encodes a HubMessage into the wire format of one application-level
// protocol (JSON, MessagePack, ...). Implementations are supplied by the caller; the
// core treats the result as an opaque byte buffer.
type HubProtocol interface {
	Name() string
	Encode(msg HubMessage) ([]byte, error)
}

// protocolSlot holds one (protocolName, encodedBytes) pair.
type protocolSlot struct {
	name string
	data []byte
}

// SerializationCache holds a source HubMessage (absent when constructed from wire
// bytes) plus a set of per-protocol encoded byte buffers. The first two protocol
// versions live in inline slots; anything past that spills into an overflow map. Most
// deployments configure one or two protocols, so the inline slots keep the hot path
// free of a map allocation.
type SerializationCache struct {
	source   *HubMessage
	inline   [2]protocolSlot
	inlineN  int
	overflow map[string][]byte
}

// NewSerializationCache builds a cache around a live HubMessage. Encoding for any
// protocol is lazy: it happens the first time GetEncoded is called for that protocol.
func NewSerializationCache(msg HubMessage) *SerializationCache {
	return &SerializationCache{source: &msg}
}

// SourceMessage returns the message this cache was built from, and whether one is
// present. A cache rehydrated from wire bytes has no source message.
func (c *SerializationCache) SourceMessage() (HubMessage, bool) {
	if c.source == nil {
		return HubMessage{}, false
	}
	return *c.source, true
}

func (c *SerializationCache) lookup(name string) ([]byte, bool) {
	for i := 0; i < c.inlineN; i++ {
		if c.inline[i].name == name {
			return c.inline[i].data, true
		}
	}
	if c.overflow != nil {
		if data, ok := c.overflow[name]; ok {
			return data, true
		}
	}
	return nil, false
}

// store records (name, data) if not already present. Writes never displace an
// existing slot: a second write for a name already cached is a no-op, matching the
// contract that repeat writes are only idempotent when the bytes are identical.
func (c *SerializationCache) store(name string, data []byte) {
	if _, exists := c.lookup(name); exists {
		return
	}
	if c.inlineN < len(c.inline) {
		c.inline[c.inlineN] = protocolSlot{name: name, data: data}
		c.inlineN++
		return
	}
	if c.overflow == nil {
		c.overflow = make(map[string][]byte)
	}
	c.overflow[name] = data
}

// GetEncoded returns the encoded bytes for protocol, encoding and caching them on
// first use. If this cache has no source message and protocol's name was not among
// the versions pre-encoded by the sender, it fails with ErrProtocolNotAvailable.
func (c *SerializationCache) GetEncoded(protocol HubProtocol) ([]byte, error) {
	name := protocol.Name()
	if data, ok := c.lookup(name); ok {
		return data, nil
	}
	if c.source == nil {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotAvailable, name)
	}
	data, err := protocol.Encode(*c.source)
	if err != nil {
		return nil, fmt.Errorf("encoding with protocol %s failed: %w", name, err)
	}
	c.store(name, data)
	return data, nil
}

// allEntries returns every (name, bytes) pair currently cached, inline first.
func (c *SerializationCache) allEntries() []protocolSlot {
	entries := make([]protocolSlot, 0, c.inlineN+len(c.overflow))
	for i := 0; i < c.inlineN; i++ {
		entries = append(entries, c.inline[i])
	}
	for name, data := range c.overflow {
		entries = append(entries, protocolSlot{name: name, data: data})
	}
	return entries
}

// WriteAllVersions produces the bytes-only wire form of this cache: encoding for
// every protocol in protocols is ensured present, then the whole set is framed as a
// u8 count followed by, per protocol, a length-prefixed name, an i32 byte length, and
// the bytes themselves. Fails with ErrTooManyProtocols if more than 255 protocols are
// supplied.
func (c *SerializationCache) WriteAllVersions(w *bufio.Writer, protocols []HubProtocol) error {
	if len(protocols) > 255 {
		return fmt.Errorf("%w: %d requested", ErrTooManyProtocols, len(protocols))
	}
	for _, p := range protocols {
		if _, err := c.GetEncoded(p); err != nil {
			return err
		}
	}
	entries := c.allEntries()
	if len(entries) > 255 {
		return fmt.Errorf("%w: %d cached", ErrTooManyProtocols, len(entries))
	}
	if err := w.WriteByte(byte(len(entries))); err != nil {
		return fmt.Errorf("writing protocol count failed: %w", err)
	}
	for _, entry := range entries {
		if err := WriteString(w, entry.name); err != nil {
			return err
		}
		if err := writeInt32(w, int32(len(entry.data))); err != nil {
			return err
		}
		if _, err := w.Write(entry.data); err != nil {
			return fmt.Errorf("writing protocol bytes failed: %w", err)
		}
	}
	return nil
}

// ReadAllVersions is the inverse of WriteAllVersions: it decodes the bytes-only cache
// form. The resulting cache has no source message; GetEncoded for any protocol not
// among the decoded set fails with ErrProtocolNotAvailable.
func ReadAllVersions(r *bufio.Reader) (*SerializationCache, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: protocol count truncated: %s", ErrMalformedFrame, err)
	}
	c := &SerializationCache{}
	for i := 0; i < int(count); i++ {
		name, err := ReadString(r)
		if err != nil {
			return nil, err
		}
		n, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative byte length", ErrMalformedFrame)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: protocol bytes truncated: %s", ErrMalformedFrame, err)
		}
		c.store(name, buf)
	}
	return c, nil
}
