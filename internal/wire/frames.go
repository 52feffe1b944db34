package wire

import (
	"bufio"
	"bytes"
	"fmt"
)

// GroupAction is the kind of membership change carried by a GroupCommandFrame.
type GroupAction byte

const (
	// GroupActionAdd requests that a connection be added to a group.
	GroupActionAdd GroupAction = 0
	// GroupActionRemove requests that a connection be removed from a group.
	GroupActionRemove GroupAction = 1
)

// InvocationFrame is published on the "all", "c:{id}", "u:{id}", and "g:{name}"
// channels. ExcludedIDs may be empty; Cache carries the bytes-only
// serialization cache form.
type InvocationFrame struct {
	ExcludedIDs []string
	Cache       *SerializationCache
}

// Encode writes the Invocation wire form: a varint count of excluded IDs, each as a
// length-prefixed string, followed by the bytes-only serialization cache.
func (f InvocationFrame) Encode(protocols []HubProtocol) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteVarInt(w, uint32(len(f.ExcludedIDs))); err != nil {
		return nil, err
	}
	for _, id := range f.ExcludedIDs {
		if err := WriteString(w, id); err != nil {
			return nil, err
		}
	}
	if err := f.Cache.WriteAllVersions(w, protocols); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flushing invocation frame failed: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeInvocationFrame parses the Invocation wire form produced by Encode.
func DecodeInvocationFrame(data []byte) (InvocationFrame, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	n, err := ReadVarInt(r)
	if err != nil {
		return InvocationFrame{}, err
	}
	excluded := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := ReadString(r)
		if err != nil {
			return InvocationFrame{}, err
		}
		excluded = append(excluded, id)
	}
	cache, err := ReadAllVersions(r)
	if err != nil {
		return InvocationFrame{}, err
	}
	return InvocationFrame{ExcludedIDs: excluded, Cache: cache}, nil
}

// Excludes reports whether connectionID is present in ExcludedIDs.
func (f InvocationFrame) Excludes(connectionID string) bool {
	for _, id := range f.ExcludedIDs {
		if id == connectionID {
			return true
		}
	}
	return false
}

// ==============================================================================

// GroupCommandFrame is published on the "gm" channel to propagate a
// cross-server membership change.
type GroupCommandFrame struct {
	ID           uint32
	ServerName   string
	Action       GroupAction
	GroupName    string
	ConnectionID string
}

// Encode writes the GroupCommand wire form.
func (f GroupCommandFrame) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteVarInt(w, f.ID); err != nil {
		return nil, err
	}
	if err := WriteString(w, f.ServerName); err != nil {
		return nil, err
	}
	if err := w.WriteByte(byte(f.Action)); err != nil {
		return nil, fmt.Errorf("writing group action failed: %w", err)
	}
	if err := WriteString(w, f.GroupName); err != nil {
		return nil, err
	}
	if err := WriteString(w, f.ConnectionID); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flushing group command frame failed: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeGroupCommandFrame parses the GroupCommand wire form produced by Encode.
func DecodeGroupCommandFrame(data []byte) (GroupCommandFrame, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	id, err := ReadVarInt(r)
	if err != nil {
		return GroupCommandFrame{}, err
	}
	serverName, err := ReadString(r)
	if err != nil {
		return GroupCommandFrame{}, err
	}
	action, err := r.ReadByte()
	if err != nil {
		return GroupCommandFrame{}, fmt.Errorf("%w: action truncated: %s", ErrMalformedFrame, err)
	}
	if action != byte(GroupActionAdd) && action != byte(GroupActionRemove) {
		return GroupCommandFrame{}, fmt.Errorf("%w: unknown group action %d", ErrMalformedFrame, action)
	}
	groupName, err := ReadString(r)
	if err != nil {
		return GroupCommandFrame{}, err
	}
	connectionID, err := ReadString(r)
	if err != nil {
		return GroupCommandFrame{}, err
	}
	return GroupCommandFrame{
		ID:           id,
		ServerName:   serverName,
		Action:       GroupAction(action),
		GroupName:    groupName,
		ConnectionID: connectionID,
	}, nil
}

// ==============================================================================

// AckFrame is published on the "ack:{serverName}" channel in reply to a
// GroupCommandFrame the originating server sent.
type AckFrame struct {
	MessageID uint32
}

// Encode writes the Ack wire form: a single varint message ID.
func (f AckFrame) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteVarInt(w, f.MessageID); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flushing ack frame failed: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeAckFrame parses the Ack wire form produced by Encode.
func DecodeAckFrame(data []byte) (AckFrame, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	id, err := ReadVarInt(r)
	if err != nil {
		return AckFrame{}, err
	}
	return AckFrame{MessageID: id}, nil
}
