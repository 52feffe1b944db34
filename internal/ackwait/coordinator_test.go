package ackwait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerAckResolvesFutureWithNil(t *testing.T) {
	assert := assert.New(t)
	c := NewCoordinator(context.Background(), time.Second)
	defer c.Dispose()

	future, err := c.CreateAck(1)
	assert.Nil(err)

	c.TriggerAck(1)

	select {
	case res := <-future:
		assert.Nil(res)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack resolution")
	}
}

func TestCreateAckRejectsDuplicateID(t *testing.T) {
	assert := assert.New(t)
	c := NewCoordinator(context.Background(), time.Second)
	defer c.Dispose()

	_, err := c.CreateAck(5)
	assert.Nil(err)

	_, err = c.CreateAck(5)
	assert.NotNil(err)
	assert.True(errors.Is(err, errDuplicateAckID))
}

func TestTriggerAckOnUnknownIDIsNoop(t *testing.T) {
	assert := assert.New(t)
	c := NewCoordinator(context.Background(), time.Second)
	defer c.Dispose()

	assert.NotPanics(func() { c.TriggerAck(999) })
}

func TestAckTimesOutWhenNoTriggerArrives(t *testing.T) {
	assert := assert.New(t)
	c := NewCoordinator(context.Background(), 50*time.Millisecond)
	defer c.Dispose()

	future, err := c.CreateAck(2)
	assert.Nil(err)

	select {
	case res := <-future:
		assert.True(errors.Is(res, ErrAckTimeout))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack timeout to fire")
	}
}

func TestDisposeFailsOutstandingFuturesWithManagerShutdown(t *testing.T) {
	assert := assert.New(t)
	c := NewCoordinator(context.Background(), time.Minute)

	future1, err := c.CreateAck(10)
	assert.Nil(err)
	future2, err := c.CreateAck(11)
	assert.Nil(err)

	c.Dispose()

	for _, future := range []<-chan error{future1, future2} {
		select {
		case res := <-future:
			assert.True(errors.Is(res, ErrManagerShutdown))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispose to resolve outstanding futures")
		}
	}
}

func TestDisposeAfterTriggerAckDoesNotDoubleResolve(t *testing.T) {
	assert := assert.New(t)
	c := NewCoordinator(context.Background(), time.Minute)

	future, err := c.CreateAck(20)
	assert.Nil(err)
	c.TriggerAck(20)

	assert.NotPanics(func() { c.Dispose() })

	select {
	case res := <-future:
		assert.Nil(res)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack resolution")
	}
}
