package broker

import (
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/nats-io/nats.go"
)

// ConnectParams bundles the connection URI, reconnect behavior, and the
// connection-state callbacks a caller logs against.
type ConnectParams struct {
	ServerURI            string
	ConnectTimeout       time.Duration
	MaxReconnectAttempt  int
	ReconnectWait        time.Duration
	OnDisconnectCallback func(*nats.Conn, error)
	OnReconnectCallback  func(*nats.Conn)
	OnCloseCallback      func(*nats.Conn)
}

// natsBroker implements Broker over core NATS publish/subscribe. It deliberately does
// not use JetStream: this broker has no persistence or replay requirement, so plain
// core-NATS subjects are the right fit.
type natsBroker struct {
	logTags log.Fields
	conn    *nats.Conn
}

// natsSubscription wraps one *nats.Subscription as a Subscription handle.
type natsSubscription struct {
	channel string
	logTags log.Fields
	sub     *nats.Subscription
}

// Unsubscribe releases this subscription only; any other subscription on the same
// subject, local or remote, is unaffected.
func (s *natsSubscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		log.WithError(err).WithFields(s.logTags).Errorf("Unsubscribe from %s failed", s.channel)
		return fmt.Errorf("unsubscribing from %s: %w", s.channel, err)
	}
	log.WithFields(s.logTags).Debugf("Unsubscribed from %s", s.channel)
	return nil
}

// Connect opens a NATS connection and returns it wrapped as a Broker.
func Connect(params ConnectParams) (Broker, error) {
	logTags := log.Fields{"module": "broker", "component": "nats", "server": params.ServerURI}

	conn, err := nats.Connect(
		params.ServerURI,
		nats.Timeout(params.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(params.MaxReconnectAttempt),
		nats.ReconnectWait(params.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).WithFields(logTags).Error("Broker connection lost")
			if params.OnDisconnectCallback != nil {
				params.OnDisconnectCallback(nc, err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithFields(logTags).Info("Broker connection restored")
			if params.OnReconnectCallback != nil {
				params.OnReconnectCallback(nc)
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.WithFields(logTags).Info("Broker connection closed")
			if params.OnCloseCallback != nil {
				params.OnCloseCallback(nc)
			}
		}),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Broker connect failed")
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	log.WithFields(logTags).Info("Broker connected")
	return &natsBroker{logTags: logTags, conn: conn}, nil
}

// Subscribe opens a fresh NATS subscription on channel. Calling Subscribe again on
// the same channel string (e.g. two local connections sharing a user ID) yields a
// second, independent subscription: both receive every message published on it. The
// connection is flushed before returning so the server has registered the
// subscription by the time the caller proceeds.
func (b *natsBroker) Subscribe(channel string, handler MessageHandler) (Subscription, error) {
	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		handler(channel, msg.Data)
	})
	if err != nil {
		log.WithError(err).WithFields(b.logTags).Errorf("Subscribe to %s failed", channel)
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		log.WithError(err).WithFields(b.logTags).Errorf("Subscribe to %s not confirmed", channel)
		return nil, fmt.Errorf("confirming subscription to %s: %w", channel, err)
	}
	log.WithFields(b.logTags).Debugf("Subscribed to %s", channel)
	return &natsSubscription{channel: channel, logTags: b.logTags, sub: sub}, nil
}

// Publish sends payload on channel.
func (b *natsBroker) Publish(channel string, payload []byte) error {
	if err := b.conn.Publish(channel, payload); err != nil {
		log.WithError(err).WithFields(b.logTags).Errorf("Publish to %s failed", channel)
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Close flushes and closes the underlying NATS connection.
func (b *natsBroker) Close() {
	if err := b.conn.Flush(); err != nil {
		log.WithError(err).WithFields(b.logTags).Error("Broker flush on close failed")
	}
	b.conn.Close()
	log.WithFields(b.logTags).Info("Broker closed")
}
