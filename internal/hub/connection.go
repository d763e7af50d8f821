package hub

import "sync"

// Conn represents one live push channel (a browser tab or a mobile app).
//
// Design notes:
// - the send channel is never closed by the hub, so concurrent broadcasters
//   cannot panic on a connection being torn down under them.
// - done signals the transport pump to close the socket.
// - Close is idempotent.
type Conn struct {
	DeviceID string
	TabID    string

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(deviceID, tabID string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Conn{
		DeviceID: deviceID,
		TabID:    tabID,
		send:     make(chan Event, queueSize),
		done:     make(chan struct{}),
	}
}

// Send enqueues an event without blocking. It reports false when the
// connection is shutting down or its queue is full.
func (c *Conn) Send(ev Event) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Events exposes the outbound queue to the transport pump.
func (c *Conn) Events() <-chan Event {
	return c.send
}

// Done returns a channel closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals shutdown (idempotent). It does NOT close the send channel.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
