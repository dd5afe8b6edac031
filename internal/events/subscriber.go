package events

import (
	"sync"
)

// ChanSubscriber buffers events in a channel. Send never blocks: a full
// buffer fails with ErrSubscriberSlow so the broadcaster drops the reader.
type ChanSubscriber struct {
	id string
	ch chan Event

	mu     sync.Mutex
	closed bool
}

// NewChanSubscriber creates a subscriber with the given buffer size
func NewChanSubscriber(id string, buffer int) *ChanSubscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChanSubscriber{id: id, ch: make(chan Event, buffer)}
}

// ID returns the subscriber ID
func (c *ChanSubscriber) ID() string { return c.id }

// Events returns the receive side
func (c *ChanSubscriber) Events() <-chan Event { return c.ch }

// Send queues e
func (c *ChanSubscriber) Send(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSubscriberClosed
	}
	select {
	case c.ch <- e:
		return nil
	default:
		return ErrSubscriberSlow
	}
}

// Close closes the channel; later sends fail with ErrSubscriberClosed
func (c *ChanSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
