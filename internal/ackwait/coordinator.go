// Package ackwait tracks in-flight (messageID -> future) pairs for group-management
// commands sent to other servers, completing or timing out each future when the
// corresponding ack arrives.
package ackwait

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alwitt/hublife/common"
	"github.com/apex/log"
)

// ackSlot is one outstanding ack. cancel releases the slot's own timeout context,
// either because TriggerAck resolved it early or because Dispose is tearing down
// everything at once.
type ackSlot struct {
	result chan error
	cancel context.CancelFunc
}

// Coordinator tracks in-flight group-management commands sent to other servers by
// message ID, resolving each one's future when its ack arrives or its timeout elapses.
// All outstanding acks share one configurable timeout.
type Coordinator struct {
	common.Component
	lock     sync.Mutex
	slots    map[uint32]*ackSlot
	timeout  time.Duration
	rootCtxt context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewCoordinator creates a Coordinator whose futures time out after timeout if no
// TriggerAck arrives first. rootCtxt bounds the lifetime of every wait this
// coordinator starts; cancelling it independently of Dispose has the same effect as
// Dispose but without delivering ErrManagerShutdown to callers.
func NewCoordinator(rootCtxt context.Context, timeout time.Duration) *Coordinator {
	ctxt, cancel := context.WithCancel(rootCtxt)
	return &Coordinator{
		Component: common.Component{LogTags: log.Fields{"module": "ackwait", "component": "coordinator"}},
		slots:     make(map[uint32]*ackSlot),
		timeout:   timeout,
		rootCtxt:  ctxt,
		cancel:    cancel,
	}
}

// CreateAck registers a new empty slot for id and returns its future. The future
// receives nil when TriggerAck(id) is called, ErrAckTimeout if the timeout elapses
// first, or ErrManagerShutdown if Dispose is called first.
func (c *Coordinator) CreateAck(id uint32) (<-chan error, error) {
	c.lock.Lock()
	if _, exists := c.slots[id]; exists {
		c.lock.Unlock()
		return nil, fmt.Errorf("%w: %d", errDuplicateAckID, id)
	}
	waitCtxt, cancel := context.WithTimeout(c.rootCtxt, c.timeout)
	slot := &ackSlot{result: make(chan error, 1), cancel: cancel}
	c.slots[id] = slot
	c.lock.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-waitCtxt.Done()
		if waitCtxt.Err() == context.DeadlineExceeded {
			c.complete(id, ErrAckTimeout)
		}
	}()
	return slot.result, nil
}

// TriggerAck completes the future registered for id with a successful result. A late
// or foreign ack (no matching slot) is a no-op.
func (c *Coordinator) TriggerAck(id uint32) {
	c.complete(id, nil)
}

func (c *Coordinator) complete(id uint32, result error) {
	c.lock.Lock()
	slot, ok := c.slots[id]
	if ok {
		delete(c.slots, id)
	}
	c.lock.Unlock()
	if !ok {
		log.WithFields(c.LogTags).Debugf("Ignoring ack for unknown id %d", id)
		return
	}
	slot.cancel()
	slot.result <- result
	close(slot.result)
}

// Dispose fails every outstanding future with ErrManagerShutdown and releases all
// pending waits.
func (c *Coordinator) Dispose() {
	c.lock.Lock()
	remaining := make([]*ackSlot, 0, len(c.slots))
	for id := range c.slots {
		remaining = append(remaining, c.slots[id])
		delete(c.slots, id)
	}
	c.lock.Unlock()

	c.cancel()
	for _, slot := range remaining {
		slot.result <- ErrManagerShutdown
		close(slot.result)
	}
	c.wg.Wait()
}
