package broker

// MessageHandler is invoked with the raw bytes published on a channel this process
// has subscribed to.
type MessageHandler func(channel string, payload []byte)

// Subscription is a single Subscribe call's handle. Multiple connections addressed by
// the same user ID subscribe independently to the same "u:{id}" channel, so
// subscriptions are identified by handle rather than by channel name: unsubscribing
// one must not disturb the others.
type Subscription interface {
	// Unsubscribe releases this subscription only.
	Unsubscribe() error
}

// Broker is the pub/sub fabric the lifetime manager coordinates over. Messages
// published to a channel are delivered to every subscription currently registered on
// it, including more than one subscription held by the same process; subscriptions
// are expected to survive transient broker disconnects (sticky subscriptions) without
// the caller re-subscribing.
type Broker interface {
	// Subscribe registers handler for messages published on channel. It blocks until
	// the subscription is confirmed by the broker and returns a handle used to
	// release this specific subscription.
	Subscribe(channel string, handler MessageHandler) (Subscription, error)
	// Publish sends payload to every subscription currently registered on channel.
	Publish(channel string, payload []byte) error
	// Close releases the underlying connection and every subscription on it.
	Close()
}
