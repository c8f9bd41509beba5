package callctl

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// SignalClient manages the websocket connection to a call relay.
type SignalClient struct {
	conn     *websocket.Conn
	incoming chan []byte
	outgoing chan any
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial connects to serverURL's call endpoint for callID as pid. token is
// optional; when set it is presented to the gateway for identity
// resolution.
func Dial(serverURL string, callID domain.CallID, pid domain.ParticipantID, token string) (*SignalClient, error) {
	base := strings.TrimRight(serverURL, "/")
	q := url.Values{}
	q.Set("userId", string(pid))
	if token != "" {
		q.Set("token", token)
	}
	endpoint := fmt.Sprintf("%s/ws/call/%s?%s", base, url.PathEscape(string(callID)), q.Encode())

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &SignalClient{
		conn:     conn,
		incoming: make(chan []byte, 8),
		outgoing: make(chan any, 8),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *SignalClient) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.incoming)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.incoming <- data:
		case <-c.done:
			return
		}
	}
}

func (c *SignalClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case v := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				log.Debug().Err(err).Str("module", "callctl.signal").Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues one frame for delivery to the relay.
func (c *SignalClient) Send(v any) error {
	select {
	case c.outgoing <- v:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling connection closed")
	}
}

// Incoming returns the channel of raw frames from the relay. It is
// closed when the connection dies.
func (c *SignalClient) Incoming() <-chan []byte {
	return c.incoming
}

// Close shuts the connection down. Idempotent.
func (c *SignalClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}
