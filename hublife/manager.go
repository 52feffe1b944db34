package hublife

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alwitt/hublife/common"
	"github.com/alwitt/hublife/internal/ackwait"
	"github.com/alwitt/hublife/internal/broker"
	"github.com/alwitt/hublife/internal/registry"
	"github.com/alwitt/hublife/internal/wire"
	"github.com/apex/log"
)

// Config are the parameters a Manager is built from.
type Config struct {
	// HubTypeName is the broker channel prefix identifying this hub type.
	HubTypeName string
	// Protocols are every application-level wire protocol this server pre-encodes
	// outbound messages for.
	Protocols []wire.HubProtocol
	// AckTimeout bounds how long AddGroup/RemoveGroup waits for a remote
	// group-management command to be acked before failing with ErrAckTimeout.
	AckTimeout time.Duration
}

// Manager is the distributed hub lifetime manager: the public facade routing
// invocations to connections, users, and groups across a cluster of servers
// coordinated over a shared broker.
type Manager struct {
	common.Component
	cfg         Config
	serverName  string
	names       broker.Names
	transport   broker.Broker
	conns       *registry.ConnectionRegistry
	groups      *registry.GroupRegistry
	acks        *ackwait.Coordinator
	cmdCounter  uint32
	rootCtxt    context.Context
	cancel      context.CancelFunc
	allSub      broker.Subscription
	gmSub       broker.Subscription
	ackSub      broker.Subscription
}

// NewManager builds a Manager bound to transport and immediately installs its
// process-wide inbound subscriptions ("all", "gm", and this server's own
// ack channel). rootCtxt bounds the lifetime of the ack coordinator's timers; cancel
// it (or call Dispose) to release them.
func NewManager(rootCtxt context.Context, transport broker.Broker, cfg Config) (*Manager, error) {
	serverName, err := newServerName()
	if err != nil {
		return nil, err
	}
	ctxt, cancel := context.WithCancel(rootCtxt)
	m := &Manager{
		Component: common.Component{LogTags: log.Fields{
			"module": "hublife", "component": "manager", "hub": cfg.HubTypeName, "server": serverName,
		}},
		cfg:        cfg,
		serverName: serverName,
		names:      broker.NewNames(cfg.HubTypeName),
		transport:  transport,
		conns:      registry.NewConnectionRegistry(),
		groups:     registry.NewGroupRegistry(),
		acks:       ackwait.NewCoordinator(ctxt, cfg.AckTimeout),
		rootCtxt:   ctxt,
		cancel:     cancel,
	}
	if err := m.start(); err != nil {
		cancel()
		return nil, err
	}
	return m, nil
}

func (m *Manager) start() error {
	allSub, err := m.transport.Subscribe(m.names.All(), m.handleAll)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", m.names.All(), err)
	}
	m.allSub = allSub

	gmSub, err := m.transport.Subscribe(m.names.GroupManagement(), m.handleGroupManagement)
	if err != nil {
		_ = m.allSub.Unsubscribe()
		return fmt.Errorf("subscribing to %s: %w", m.names.GroupManagement(), err)
	}
	m.gmSub = gmSub

	ackSub, err := m.transport.Subscribe(m.names.Ack(m.serverName), m.handleAck)
	if err != nil {
		_ = m.allSub.Unsubscribe()
		_ = m.gmSub.Unsubscribe()
		return fmt.Errorf("subscribing to %s: %w", m.names.Ack(m.serverName), err)
	}
	m.ackSub = ackSub
	return nil
}

// Dispose releases the process-wide subscriptions, fails every outstanding
// AddGroup/RemoveGroup call with ErrManagerShutdown, and stops the ack coordinator's
// timers.
func (m *Manager) Dispose() {
	if m.allSub != nil {
		_ = m.allSub.Unsubscribe()
	}
	if m.gmSub != nil {
		_ = m.gmSub.Unsubscribe()
	}
	if m.ackSub != nil {
		_ = m.ackSub.Unsubscribe()
	}
	m.acks.Dispose()
	m.cancel()
}

// ServerName returns this manager's generated server identity.
func (m *Manager) ServerName() string {
	return m.serverName
}

// ConnectionCount returns the number of connections currently registered locally.
func (m *Manager) ConnectionCount() int {
	return len(m.conns.Snapshot())
}

func (m *Manager) log() *log.Entry {
	return log.WithFields(m.LogTags)
}

// safeWrite delivers payload to c and swallows any failure: one connection's write
// failure must never surface to the caller of a fan-out and must never stop delivery
// to other connections.
func (m *Manager) safeWrite(ctx context.Context, c registry.ConnectionHandle, payload interface{}) {
	if err := c.Write(ctx, payload); err != nil {
		m.log().WithError(err).Warnf("write to connection %s failed", c.ConnectionID())
	}
}

func (m *Manager) nextCommandID() uint32 {
	return atomic.AddUint32(&m.cmdCounter, 1)
}

// ===============================================================================
// Connection lifecycle

// OnConnected registers c, subscribes to its individual "connection" channel and, if
// c carries a user ID, its "user" channel. Both subscriptions must succeed before the
// call returns; on failure c is deregistered and any subscription already made is
// released.
func (m *Manager) OnConnected(ctx context.Context, c registry.ConnectionHandle) error {
	features := m.conns.Add(c)

	connSub, err := m.transport.Subscribe(m.names.Connection(c.ConnectionID()), m.handleDirect(c))
	if err != nil {
		m.conns.Remove(c.ConnectionID())
		return fmt.Errorf("subscribing connection channel: %w", err)
	}
	features.AddSubscription(connSub)

	if c.UserID() != "" {
		userSub, err := m.transport.Subscribe(m.names.User(c.UserID()), m.handleDirect(c))
		if err != nil {
			_ = connSub.Unsubscribe()
			m.conns.Remove(c.ConnectionID())
			return fmt.Errorf("subscribing user channel: %w", err)
		}
		features.AddSubscription(userSub)
	}
	return nil
}

// OnDisconnected deregisters c, releases every channel subscription its feature bag
// recorded, and locally removes it from every group it had joined. All of this runs
// in parallel; individual failures are logged and never returned.
func (m *Manager) OnDisconnected(ctx context.Context, c registry.ConnectionHandle) {
	_, features, ok := m.conns.Remove(c.ConnectionID())
	if !ok {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range features.Subscriptions() {
		sub := sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Unsubscribe(); err != nil {
				m.log().WithError(err).Warnf("unsubscribe during disconnect of %s failed", c.ConnectionID())
			}
		}()
	}
	for _, groupName := range features.Groups() {
		groupName := groupName
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.RemoveGroupCore(ctx, c, groupName); err != nil {
				m.log().WithError(err).Warnf(
					"removing %s from group %s during disconnect failed", c.ConnectionID(), groupName,
				)
			}
		}()
	}
	wg.Wait()
}

// ===============================================================================
// Fan-out sends

// SendAll delivers method/args to every connection on every server.
func (m *Manager) SendAll(ctx context.Context, method string, args []interface{}) error {
	return m.SendAllExcept(ctx, method, args, nil)
}

// SendAllExcept delivers method/args to every connection on every server except the
// ones listed in excluded.
func (m *Manager) SendAllExcept(ctx context.Context, method string, args []interface{}, excluded []string) error {
	return m.publishInvocation(m.names.All(), method, args, excluded)
}

// SendConnection delivers method/args to connectionID. If connectionID is registered
// on this server the write skips the broker entirely.
func (m *Manager) SendConnection(ctx context.Context, connectionID, method string, args []interface{}) error {
	if connectionID == "" {
		return ErrArgumentNull
	}
	if handle, _, ok := m.conns.Get(connectionID); ok {
		m.safeWrite(ctx, handle, wire.HubMessage{Target: method, Arguments: args})
		return nil
	}
	return m.publishInvocation(m.names.Connection(connectionID), method, args, nil)
}

// SendGroup delivers method/args to every member of groupName, on every server that
// holds one. It never short-circuits locally because a group may span servers.
func (m *Manager) SendGroup(ctx context.Context, groupName, method string, args []interface{}) error {
	return m.SendGroupExcept(ctx, groupName, method, args, nil)
}

// SendGroupExcept is SendGroup with an exclusion list.
func (m *Manager) SendGroupExcept(
	ctx context.Context, groupName, method string, args []interface{}, excluded []string,
) error {
	if groupName == "" {
		return ErrArgumentNull
	}
	return m.publishInvocation(m.names.Group(groupName), method, args, excluded)
}

// SendUser delivers method/args to every connection belonging to userID, wherever
// they are connected.
func (m *Manager) SendUser(ctx context.Context, userID, method string, args []interface{}) error {
	return m.publishInvocation(m.names.User(userID), method, args, nil)
}

func (m *Manager) publishInvocation(channel, method string, args []interface{}, excluded []string) error {
	cache := wire.NewSerializationCache(wire.HubMessage{Target: method, Arguments: args})
	frame := wire.InvocationFrame{ExcludedIDs: excluded, Cache: cache}
	data, err := frame.Encode(m.cfg.Protocols)
	if err != nil {
		return fmt.Errorf("encoding invocation: %w", err)
	}
	if err := m.transport.Publish(channel, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// SendConnections delivers method/args to every ID in connectionIDs, applying the
// same local-short-circuit rule as SendConnection to each. The payload is encoded for
// the broker at most once and reused across every non-local ID.
func (m *Manager) SendConnections(ctx context.Context, connectionIDs []string, method string, args []interface{}) error {
	if len(connectionIDs) == 0 {
		return ErrArgumentNull
	}
	msg := wire.HubMessage{Target: method, Arguments: args}
	cache := wire.NewSerializationCache(msg)
	frame := wire.InvocationFrame{Cache: cache}

	var wireBytes []byte
	var firstErr error
	for _, id := range connectionIDs {
		if handle, _, ok := m.conns.Get(id); ok {
			m.safeWrite(ctx, handle, msg)
			continue
		}
		if wireBytes == nil {
			data, err := frame.Encode(m.cfg.Protocols)
			if err != nil {
				return fmt.Errorf("encoding invocation: %w", err)
			}
			wireBytes = data
		}
		if err := m.transport.Publish(m.names.Connection(id), wireBytes); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("publishing to connection %s: %w", id, err)
		}
	}
	return firstErr
}

// SendGroups delivers method/args to every group in groupNames. The payload is
// encoded once and published once per group.
func (m *Manager) SendGroups(ctx context.Context, groupNames []string, method string, args []interface{}) error {
	if len(groupNames) == 0 {
		return ErrArgumentNull
	}
	data, err := (wire.InvocationFrame{Cache: wire.NewSerializationCache(wire.HubMessage{Target: method, Arguments: args})}).
		Encode(m.cfg.Protocols)
	if err != nil {
		return fmt.Errorf("encoding invocation: %w", err)
	}
	var firstErr error
	for _, name := range groupNames {
		if err := m.transport.Publish(m.names.Group(name), data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("publishing to group %s: %w", name, err)
		}
	}
	return firstErr
}

// SendUsers delivers method/args to every user ID in userIDs. The payload is encoded
// once and published once per user.
func (m *Manager) SendUsers(ctx context.Context, userIDs []string, method string, args []interface{}) error {
	if len(userIDs) == 0 {
		return ErrArgumentNull
	}
	data, err := (wire.InvocationFrame{Cache: wire.NewSerializationCache(wire.HubMessage{Target: method, Arguments: args})}).
		Encode(m.cfg.Protocols)
	if err != nil {
		return fmt.Errorf("encoding invocation: %w", err)
	}
	var firstErr error
	for _, id := range userIDs {
		if err := m.transport.Publish(m.names.User(id), data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("publishing to user %s: %w", id, err)
		}
	}
	return firstErr
}

// ===============================================================================
// Group membership

// AddGroup joins connectionID to groupName. If connectionID is local the membership
// change is applied directly; otherwise a GroupCommand is published on the
// groupManagement channel and AddGroup blocks until the owning server acks it.
func (m *Manager) AddGroup(ctx context.Context, connectionID, groupName string) error {
	if connectionID == "" || groupName == "" {
		return ErrArgumentNull
	}
	if handle, _, ok := m.conns.Get(connectionID); ok {
		return m.AddGroupCore(ctx, handle, groupName)
	}
	return m.sendGroupCommand(ctx, wire.GroupActionAdd, connectionID, groupName)
}

// RemoveGroup is the symmetric counterpart of AddGroup.
func (m *Manager) RemoveGroup(ctx context.Context, connectionID, groupName string) error {
	if connectionID == "" || groupName == "" {
		return ErrArgumentNull
	}
	if handle, _, ok := m.conns.Get(connectionID); ok {
		return m.RemoveGroupCore(ctx, handle, groupName)
	}
	return m.sendGroupCommand(ctx, wire.GroupActionRemove, connectionID, groupName)
}

func (m *Manager) sendGroupCommand(ctx context.Context, action wire.GroupAction, connectionID, groupName string) error {
	id := m.nextCommandID()
	future, err := m.acks.CreateAck(id)
	if err != nil {
		return fmt.Errorf("registering ack: %w", err)
	}
	frame := wire.GroupCommandFrame{
		ID: id, ServerName: m.serverName, Action: action, GroupName: groupName, ConnectionID: connectionID,
	}
	data, err := frame.Encode()
	if err != nil {
		return fmt.Errorf("encoding group command: %w", err)
	}
	if err := m.transport.Publish(m.names.GroupManagement(), data); err != nil {
		// The registered ack slot self-cleans on its timeout; nothing to unwind here.
		return fmt.Errorf("publishing group command: %w", err)
	}
	select {
	case res := <-future:
		return res
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddGroupCore applies an already-local membership change: c must be registered on
// this server. Joining a group c already belongs to is a no-op.
func (m *Manager) AddGroupCore(ctx context.Context, c registry.ConnectionHandle, groupName string) error {
	_, features, ok := m.conns.Get(c.ConnectionID())
	if !ok {
		return fmt.Errorf("connection %s is not registered on this server", c.ConnectionID())
	}
	if !features.AddGroup(groupName) {
		return nil
	}

	channel := m.names.Group(groupName)
	entry := m.groups.GetOrCreate(channel)
	entry.Lock()
	wasEmpty := len(entry.Connections) == 0
	entry.Connections[c.ConnectionID()] = c
	var subErr error
	if wasEmpty {
		var sub broker.Subscription
		sub, subErr = m.transport.Subscribe(channel, m.handleGroup(channel))
		if subErr == nil {
			entry.Sub = sub
		}
	}
	entry.Unlock()

	if subErr != nil {
		entry.Lock()
		delete(entry.Connections, c.ConnectionID())
		entry.Unlock()
		features.RemoveGroup(groupName)
		return fmt.Errorf("subscribing to group %s: %w", groupName, subErr)
	}
	return nil
}

// RemoveGroupCore applies an already-local membership removal. Removing c from a
// group it does not belong to, or a group that was never created, is a no-op.
func (m *Manager) RemoveGroupCore(ctx context.Context, c registry.ConnectionHandle, groupName string) error {
	if _, features, ok := m.conns.Get(c.ConnectionID()); ok {
		features.RemoveGroup(groupName)
	}

	channel := m.names.Group(groupName)
	entry, ok := m.groups.Get(channel)
	if !ok {
		return nil
	}
	entry.Lock()
	delete(entry.Connections, c.ConnectionID())
	nowEmpty := len(entry.Connections) == 0
	var unsubErr error
	if nowEmpty && entry.Sub != nil {
		unsubErr = entry.Sub.Unsubscribe()
		entry.Sub = nil
	}
	entry.Unlock()
	if unsubErr != nil {
		return fmt.Errorf("unsubscribing from group %s: %w", groupName, unsubErr)
	}
	return nil
}

// ===============================================================================
// Inbound broker dispatch

func (m *Manager) decodeInvocation(channel string, payload []byte) (wire.InvocationFrame, bool) {
	frame, err := wire.DecodeInvocationFrame(payload)
	if err != nil {
		m.log().WithError(err).Errorf("decoding invocation on %s failed", channel)
		return wire.InvocationFrame{}, false
	}
	return frame, true
}

// handleAll is installed once, on the "all" channel. It skips only the connections
// named in the exclusion list; an empty list excludes nothing and delivers to every
// connection.
func (m *Manager) handleAll(channel string, payload []byte) {
	frame, ok := m.decodeInvocation(channel, payload)
	if !ok {
		return
	}
	for _, entry := range m.conns.Snapshot() {
		if frame.Excludes(entry.Handle.ConnectionID()) {
			continue
		}
		m.safeWrite(m.rootCtxt, entry.Handle, frame.Cache)
	}
}

// handleDirect is installed per-connection on its "c:{id}" channel and, if it has a
// user ID, again on "u:{id}". Every local connection subscribed to a given channel
// gets its own independent copy of this handler bound to its own handle, so no
// exclusion filter or registry lookup is needed here.
func (m *Manager) handleDirect(c registry.ConnectionHandle) broker.MessageHandler {
	return func(channel string, payload []byte) {
		frame, ok := m.decodeInvocation(channel, payload)
		if !ok {
			return
		}
		m.safeWrite(m.rootCtxt, c, frame.Cache)
	}
}

// handleGroup is installed once per GroupEntry, for as long as it has local members.
func (m *Manager) handleGroup(channel string) broker.MessageHandler {
	return func(ch string, payload []byte) {
		frame, ok := m.decodeInvocation(ch, payload)
		if !ok {
			return
		}
		entry, ok := m.groups.Get(channel)
		if !ok {
			return
		}
		for _, c := range entry.Snapshot() {
			if frame.Excludes(c.ConnectionID()) {
				continue
			}
			m.safeWrite(m.rootCtxt, c, frame.Cache)
		}
	}
}

// handleGroupManagement is installed once, on the "gm" channel shared by
// every server for this hub type.
func (m *Manager) handleGroupManagement(channel string, payload []byte) {
	cmd, err := wire.DecodeGroupCommandFrame(payload)
	if err != nil {
		m.log().WithError(err).Errorf("decoding group command on %s failed", channel)
		return
	}
	handle, _, ok := m.conns.Get(cmd.ConnectionID)
	if !ok {
		return
	}

	var opErr error
	switch cmd.Action {
	case wire.GroupActionAdd:
		opErr = m.AddGroupCore(m.rootCtxt, handle, cmd.GroupName)
	case wire.GroupActionRemove:
		opErr = m.RemoveGroupCore(m.rootCtxt, handle, cmd.GroupName)
	}
	if opErr != nil {
		m.log().WithError(opErr).Errorf("applying group command %d from %s failed", cmd.ID, cmd.ServerName)
	}

	ack := wire.AckFrame{MessageID: cmd.ID}
	data, err := ack.Encode()
	if err != nil {
		m.log().WithError(err).Error("encoding ack failed")
		return
	}
	if err := m.transport.Publish(m.names.Ack(cmd.ServerName), data); err != nil {
		m.log().WithError(err).Errorf("publishing ack to %s failed", cmd.ServerName)
	}
}

// handleAck is installed once, on this server's own "ack:{serverName}" channel.
func (m *Manager) handleAck(channel string, payload []byte) {
	frame, err := wire.DecodeAckFrame(payload)
	if err != nil {
		m.log().WithError(err).Errorf("decoding ack on %s failed", channel)
		return
	}
	m.acks.TriggerAck(frame.MessageID)
}
