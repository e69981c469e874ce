package hub

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session auth.Session
	rooms   []string
	send    chan []byte
	// closed is guarded by hub.mu.
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, session auth.Session, buffer int) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		session: session,
		rooms:   roomsFor(session),
		send:    make(chan []byte, buffer),
	}
}

// Serve registers the connection and pumps messages until the client goes
// away or the hub closes. It blocks for the lifetime of the connection.
func (h *Hub) Serve(conn *websocket.Conn, session auth.Session) {
	c := newClient(h, conn, session, sendBuffer)
	h.join(c)
	logger.Info("WebSocket client connected", "user_id", session.UserID, "rooms", c.rooms)

	go c.writePump()
	c.readPump()

	h.leave(c)
	logger.Info("WebSocket client disconnected", "user_id", session.UserID)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

// readPump only services control frames; the channel is server to client.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read failed", "user_id", c.session.UserID, "error", err)
			}
			return
		}
	}
}
