// SPDX-License-Identifier: MIT
package wire

import "sync/atomic"

// Channel is the bounded, bidirectional message boundary between the
// capture side and the coordinator. Both directions use non-blocking
// sends: the real-time side must never wait, and a full queue means the
// message is dropped and counted, which bounds data loss instead of
// latency.
type Channel struct {
	events  chan Message // processor → coordinator
	control chan Message // coordinator → processor

	droppedEvents  atomic.Uint64
	droppedControl atomic.Uint64
}

// ChannelStats counts messages lost to full queues.
type ChannelStats struct {
	DroppedEvents  uint64 `json:"droppedEvents"`
	DroppedControl uint64 `json:"droppedControl"`
}

// NewChannel creates a channel with the given queue depths. The event
// queue should hold at least pool-size batches plus status headroom so
// ordinary operation never drops.
func NewChannel(eventCap, controlCap int) *Channel {
	if eventCap <= 0 {
		eventCap = 16
	}
	if controlCap <= 0 {
		controlCap = 16
	}
	return &Channel{
		events:  make(chan Message, eventCap),
		control: make(chan Message, controlCap),
	}
}

// SendEvent queues a processor → coordinator message without blocking.
// Returns false (and counts the drop) when the queue is full.
func (c *Channel) SendEvent(m Message) bool {
	select {
	case c.events <- m:
		return true
	default:
		c.droppedEvents.Add(1)
		return false
	}
}

// Events returns the receive side of the event queue.
func (c *Channel) Events() <-chan Message { return c.events }

// SendControl queues a coordinator → processor message without
// blocking. Returns false (and counts the drop) when the queue is full.
func (c *Channel) SendControl(m Message) bool {
	select {
	case c.control <- m:
		return true
	default:
		c.droppedControl.Add(1)
		return false
	}
}

// RecvControl drains one pending control message without blocking,
// returning (nil, false) when none is queued. Called from the real-time
// callback at quantum boundaries.
func (c *Channel) RecvControl() (Message, bool) {
	select {
	case m := <-c.control:
		return m, true
	default:
		return nil, false
	}
}

// Stats returns drop counters. Safe from any goroutine.
func (c *Channel) Stats() ChannelStats {
	return ChannelStats{
		DroppedEvents:  c.droppedEvents.Load(),
		DroppedControl: c.droppedControl.Load(),
	}
}
