package websocket

import (
	"context"
	"time"

	"kick-haven/internal/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only listen.
	maxMessageSize = 512
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The user ID this client represents.
	UserID uuid.UUID

	conn *websocket.Conn

	// Buffered channel of outbound messages. Closed by the hub.
	send chan []byte
}

// Attach registers conn for userID and starts its pumps. It returns once the
// client is registered, or when ctx is done first.
func (h *Hub) Attach(ctx context.Context, userID uuid.UUID, conn *websocket.Conn) bool {
	c := &Client{hub: h, UserID: userID, conn: conn, send: make(chan []byte, clientQueueSize)}
	select {
	case h.register <- c:
	case <-ctx.Done():
		conn.Close()
		return false
	case <-h.done:
		conn.Close()
		return false
	}
	go c.writePump()
	go c.readPump()
	return true
}

// enqueue is called from the hub loop only.
func (c *Client) enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
		logging.Warn().Str("user", c.UserID.String()).Msg("websocket send buffer full, event dropped")
	}
}

// readPump drains control frames and unregisters the client when the peer
// goes away.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Str("user", c.UserID.String()).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// One event per line when several are queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				logging.Debug().Err(err).Str("user", c.UserID.String()).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
