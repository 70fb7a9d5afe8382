package hub

import (
	"context"
	"sync"

	"github.com/theonlypal/collabfs/internal/protocol"
)

// RawStream is the minimal bidirectional frame transport the hub depends
// on. internal/transport implements it over a coder/websocket connection;
// tests implement it over Go channels so the hub can be exercised without
// a network.
type RawStream interface {
	ReadFrame(ctx context.Context) (protocol.Frame, error)
	WriteFrame(ctx context.Context, f protocol.Frame) error
	Close() error
	RemoteAddr() string
}

// conn wraps a RawStream with a bounded outbound queue and a dedicated
// writer goroutine, so one slow peer's socket can never make Hub.broadcast
// block on the other peers in a session.
type conn struct {
	raw RawStream

	out    chan protocol.Frame
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// newConn creates a conn with an outbound queue of the given capacity —
// the high-water mark at which a slow peer gets dropped.
func newConn(raw RawStream, queueSize int) *conn {
	return &conn{
		raw:  raw,
		out:  make(chan protocol.Frame, queueSize),
		done: make(chan struct{}),
	}
}

// writeLoop drains the outbound queue to the underlying stream until the
// conn is closed or the write fails. Run as its own goroutine per
// connection.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case f, ok := <-c.out:
			if !ok {
				return
			}
			if err := c.raw.WriteFrame(ctx, f); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// enqueue stages f for delivery without blocking. It reports false — and
// closes the connection — if the outbound queue is already full, per the
// backpressure policy: drop the slow peer rather than stall the broadcast.
func (c *conn) enqueue(f protocol.Frame) bool {
	select {
	case c.out <- f:
		return true
	default:
		c.Close()
		return false
	}
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.raw.Close()
}

func (c *conn) RemoteAddr() string { return c.raw.RemoteAddr() }
