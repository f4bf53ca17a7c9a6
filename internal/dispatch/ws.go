// ABOUTME: WebSocket upgrade endpoint feeding connections into the dispatcher
// ABOUTME: Each upgraded socket gets a fresh connection id and its two pumps

package dispatch

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Identity is established by the register event, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request into a dispatcher connection.
func (d *Dispatcher) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Default().Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(uuid.NewString(), conn, d.logger)
	d.logger.Info("websocket connected", "connection_id", c.ID())

	go c.writePump()
	go c.readPump(d)
}
