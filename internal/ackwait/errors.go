package ackwait

import "errors"

// ErrAckTimeout is delivered to a Coordinator caller when no TriggerAck arrives
// within the configured timeout.
var ErrAckTimeout = errors.New("ack wait timed out")

// ErrManagerShutdown is delivered to every outstanding Coordinator caller when
// Dispose is called.
var ErrManagerShutdown = errors.New("ack coordinator disposed")

// errDuplicateAckID is an internal invariant violation: the caller reused an ack ID
// that is still outstanding. The lifetime manager's monotonic per-server counter
// prevents this in practice.
var errDuplicateAckID = errors.New("ack id already outstanding")
