// Package ws is the websocket transport adapter: it upgrades gateway
// requests, wraps the raw connection behind core.SignalConnection, and
// runs the read/write pumps for each session.
package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parleychat/parley/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn decouples fan-out from the wire: TrySend drops into a buffered
// channel and never blocks, so one slow consumer cannot stall a room's
// broadcast loop. The write pump is the only writer on the socket.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn, buf int) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan core.Frame, buf),
	}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
