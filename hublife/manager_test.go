package hublife

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alwitt/hublife/internal/broker"
	"github.com/alwitt/hublife/internal/wire"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

// recordingProtocol is a minimal HubProtocol whose Encode is distinguishable from any
// other instance sharing the same Name: it appends suffix to the target before
// marshaling as JSON. Two recordingProtocol values with the same Name but different
// suffixes let a test tell whether a message was decoded from bytes produced by the
// sender's protocol (suffix intact) or accidentally re-encoded by the receiver's own.
type recordingProtocol struct {
	name   string
	suffix string
}

func (p recordingProtocol) Name() string { return p.name }

func (p recordingProtocol) Encode(msg wire.HubMessage) ([]byte, error) {
	msg.Target = msg.Target + p.suffix
	return json.Marshal(msg)
}

func (p recordingProtocol) Decode(data []byte) (wire.HubMessage, error) {
	var msg wire.HubMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// fakeConn is a test double for ConnectionHandle. It decodes cache-borne payloads
// through protocol so tests can assert on the delivered HubMessage instead of raw
// bytes, and can be told to fail its next N writes to exercise fan-out isolation.
type fakeConn struct {
	id       string
	userID   string
	protocol wire.HubProtocol

	mu        sync.Mutex
	received  []wire.HubMessage
	failNextN int
}

func newFakeConn(id, userID string, protocol wire.HubProtocol) *fakeConn {
	return &fakeConn{id: id, userID: userID, protocol: protocol}
}

func (f *fakeConn) ConnectionID() string { return f.id }
func (f *fakeConn) UserID() string       { return f.userID }

func (f *fakeConn) failNextWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNextN++
}

func (f *fakeConn) Write(ctx context.Context, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextN > 0 {
		f.failNextN--
		return errors.New("simulated write failure")
	}
	switch v := payload.(type) {
	case wire.HubMessage:
		f.received = append(f.received, v)
		return nil
	case *wire.SerializationCache:
		data, err := v.GetEncoded(f.protocol)
		if err != nil {
			return err
		}
		decoder, ok := f.protocol.(interface{ Decode([]byte) (wire.HubMessage, error) })
		if !ok {
			return errors.New("protocol cannot decode")
		}
		msg, err := decoder.Decode(data)
		if err != nil {
			return err
		}
		f.received = append(f.received, msg)
		return nil
	default:
		return errors.New("unsupported payload type")
	}
}

func (f *fakeConn) messages() []wire.HubMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.HubMessage, len(f.received))
	copy(out, f.received)
	return out
}

// startEmbeddedCluster spins up one in-process NATS server and n Manager instances,
// each on its own connection to it, standing in for n servers in the same cluster.
func startEmbeddedCluster(
	t *testing.T, n int, hubTypeName string, protocol wire.HubProtocol,
) (*broker.EmbeddedServer, []*Manager) {
	t.Helper()
	embedded, err := broker.StartEmbeddedServer()
	assert.Nil(t, err)

	managers := make([]*Manager, n)
	for i := 0; i < n; i++ {
		conn, err := broker.Connect(broker.ConnectParams{
			ServerURI:           embedded.ClientURL(),
			ConnectTimeout:      time.Second,
			MaxReconnectAttempt: -1,
			ReconnectWait:       100 * time.Millisecond,
		})
		assert.Nil(t, err)
		m, err := NewManager(context.Background(), conn, Config{
			HubTypeName: hubTypeName,
			Protocols:   []wire.HubProtocol{protocol},
			AckTimeout:  time.Second,
		})
		assert.Nil(t, err)
		managers[i] = m
	}
	return embedded, managers
}

func TestSendAllReachesConnectionsOnEveryServer(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	ctx := context.Background()
	protocol := recordingProtocol{name: "json"}

	embedded, managers := startEmbeddedCluster(t, 2, "unit-all", protocol)
	defer embedded.Shutdown()
	defer managers[0].Dispose()
	defer managers[1].Dispose()

	c1 := newFakeConn("c1", "", protocol)
	c2 := newFakeConn("c2", "", protocol)
	assert.Nil(managers[0].OnConnected(ctx, c1))
	assert.Nil(managers[1].OnConnected(ctx, c2))

	assert.Nil(managers[0].SendAll(ctx, "Hello", []interface{}{"World"}))

	assert.Eventually(func() bool { return len(c1.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(func() bool { return len(c2.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal("Hello", c1.messages()[0].Target)
	assert.Equal("Hello", c2.messages()[0].Target)
}

func TestSendAllExceptSkipsExcludedConnection(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	protocol := recordingProtocol{name: "json"}

	embedded, managers := startEmbeddedCluster(t, 3, "unit-exclude", protocol)
	defer embedded.Shutdown()
	defer managers[0].Dispose()
	defer managers[1].Dispose()
	defer managers[2].Dispose()

	c1 := newFakeConn("c1", "", protocol)
	c2 := newFakeConn("c2", "", protocol)
	c3 := newFakeConn("c3", "", protocol)
	assert.Nil(managers[0].OnConnected(ctx, c1))
	assert.Nil(managers[1].OnConnected(ctx, c2))
	assert.Nil(managers[2].OnConnected(ctx, c3))

	assert.Nil(managers[0].SendAllExcept(ctx, "Hello", []interface{}{"World"}, []string{"c3"}))

	assert.Eventually(func() bool { return len(c1.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(func() bool { return len(c2.messages()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Empty(c3.messages())
}

func TestCrossServerAddGroupThenSendGroupReachesRemoteConnection(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	protocol := recordingProtocol{name: "json"}

	embedded, managers := startEmbeddedCluster(t, 2, "unit-group", protocol)
	defer embedded.Shutdown()
	defer managers[0].Dispose()
	defer managers[1].Dispose()

	s1, s2 := managers[0], managers[1]
	c := newFakeConn("c1", "", protocol)
	assert.Nil(s1.OnConnected(ctx, c))

	assert.Nil(s2.AddGroup(ctx, c.ConnectionID(), "gunit"))
	assert.Nil(s2.SendGroup(ctx, "gunit", "Hello", []interface{}{"World"}))

	assert.Eventually(func() bool { return len(c.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal("Hello", c.messages()[0].Target)
}

func TestDisconnectClearsGroupMembershipAndReleasesSubscription(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	protocol := recordingProtocol{name: "json"}

	embedded, managers := startEmbeddedCluster(t, 1, "unit-disconnect", protocol)
	defer embedded.Shutdown()
	defer managers[0].Dispose()

	s := managers[0]
	c := newFakeConn("c1", "", protocol)
	assert.Nil(s.OnConnected(ctx, c))
	assert.Nil(s.AddGroup(ctx, c.ConnectionID(), "g"))

	s.OnDisconnected(ctx, c)

	entry, ok := s.groups.Get(s.names.Group("g"))
	assert.True(ok)
	entry.Lock()
	assert.Nil(entry.Sub)
	entry.Unlock()

	assert.Nil(s.SendGroup(ctx, "g", "Hello", []interface{}{"World"}))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(c.messages())
}

func TestWriteFailureInFanOutDoesNotBlockOtherMembers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	protocol := recordingProtocol{name: "json"}

	embedded, managers := startEmbeddedCluster(t, 1, "unit-writefail", protocol)
	defer embedded.Shutdown()
	defer managers[0].Dispose()

	s := managers[0]
	c1 := newFakeConn("c1", "", protocol)
	c2 := newFakeConn("c2", "", protocol)
	assert.Nil(s.OnConnected(ctx, c1))
	assert.Nil(s.OnConnected(ctx, c2))
	assert.Nil(s.AddGroup(ctx, c1.ConnectionID(), "g"))
	assert.Nil(s.AddGroup(ctx, c2.ConnectionID(), "g"))

	c1.failNextWrite()
	assert.Nil(s.SendGroup(ctx, "g", "Hello", []interface{}{"World"}))

	assert.Eventually(func() bool { return len(c2.messages()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(c1.messages())

	assert.Nil(s.SendGroup(ctx, "g", "Hello", []interface{}{"World"}))
	assert.Eventually(func() bool { return len(c1.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(func() bool { return len(c2.messages()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestSerializedBytesArePreservedAcrossTheBroker(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	senderProtocol := recordingProtocol{name: "json", suffix: "-camel"}
	receiverProtocol := recordingProtocol{name: "json", suffix: "-default"}

	embedded, err := broker.StartEmbeddedServer()
	assert.Nil(err)
	defer embedded.Shutdown()

	senderConn, err := broker.Connect(broker.ConnectParams{
		ServerURI: embedded.ClientURL(), ConnectTimeout: time.Second,
		MaxReconnectAttempt: -1, ReconnectWait: 100 * time.Millisecond,
	})
	assert.Nil(err)
	receiverConn, err := broker.Connect(broker.ConnectParams{
		ServerURI: embedded.ClientURL(), ConnectTimeout: time.Second,
		MaxReconnectAttempt: -1, ReconnectWait: 100 * time.Millisecond,
	})
	assert.Nil(err)

	sender, err := NewManager(ctx, senderConn, Config{
		HubTypeName: "unit-protocol", Protocols: []wire.HubProtocol{senderProtocol}, AckTimeout: time.Second,
	})
	assert.Nil(err)
	defer sender.Dispose()
	receiver, err := NewManager(ctx, receiverConn, Config{
		HubTypeName: "unit-protocol", Protocols: []wire.HubProtocol{receiverProtocol}, AckTimeout: time.Second,
	})
	assert.Nil(err)
	defer receiver.Dispose()

	c := newFakeConn("c1", "", receiverProtocol)
	assert.Nil(receiver.OnConnected(ctx, c))

	assert.Nil(sender.SendConnection(ctx, "c1", "Hello", []interface{}{"World"}))

	assert.Eventually(func() bool { return len(c.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal("Hello-camel", c.messages()[0].Target)
}

func TestAddGroupForUnreachableConnectionFailsWithAckTimeout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	protocol := recordingProtocol{name: "json"}

	embedded, managers := startEmbeddedCluster(t, 2, "unit-acktimeout", protocol)
	defer embedded.Shutdown()
	defer managers[0].Dispose()
	defer managers[1].Dispose()

	start := time.Now()
	err := managers[0].AddGroup(ctx, "no-such-connection", "gunit")
	elapsed := time.Since(start)

	assert.True(errors.Is(err, ErrAckTimeout))
	assert.Less(elapsed, 2*time.Second)
}
