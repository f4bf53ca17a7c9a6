// ABOUTME: Per-connection websocket client with read and write pumps
// ABOUTME: Owns the socket's write side; Deliver is non-blocking and drops when full

package dispatch

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// outBuffer is how many queued events a connection may fall behind
	// before deliveries to it are dropped.
	outBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
)

// Client is one live websocket connection. The write pump is the only
// goroutine that touches the socket's write side.
type Client struct {
	id     string
	conn   *websocket.Conn
	out    chan Event
	done   chan struct{}
	logger *slog.Logger
}

func newClient(id string, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		out:    make(chan Event, outBuffer),
		done:   make(chan struct{}),
		logger: logger.With("connection_id", id),
	}
}

// ID returns the connection identifier. It is never reused.
func (c *Client) ID() string { return c.id }

// Deliver queues an event for the write pump without blocking. It
// returns false when the client is gone or its buffer is full; the
// event is dropped in both cases.
func (c *Client) Deliver(eventType string, data any) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- Event{Type: eventType, Data: data}:
		return true
	default:
		c.logger.Debug("outbound buffer full, dropping event", "event", eventType)
		return false
	}
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("write failed, closing", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readPump feeds inbound frames to the dispatcher until the connection
// drops, then tears the client down.
func (c *Client) readPump(d *Dispatcher) {
	defer func() {
		d.Disconnect(c)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("connection closed unexpectedly", "error", err)
			}
			return
		}
		d.HandleMessage(c, message)
	}
}
