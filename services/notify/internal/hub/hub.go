// Package hub fans live notifications out to WebSocket clients grouped in
// rooms. Every connection joins user:<id>; admins also join role:admin.
// Delivery is best effort: a client whose buffer is full misses the message.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/diagnosis/buildhub/pkg/auth"
)

const AdminRoom = "role:admin"

var (
	connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_ws_connections",
		Help: "Number of open WebSocket connections",
	})

	messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_messages_total",
		Help: "Live messages handed to clients, by result",
	}, []string{"type", "result"})
)

func UserRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Message is the frame written to clients.
type Message struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func New() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

func roomsFor(session auth.Session) []string {
	rooms := []string{UserRoom(session.UserID)}
	if session.IsAdmin() {
		rooms = append(rooms, AdminRoom)
	}
	return rooms
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	connections.Inc()
}

// leave removes c from its rooms and closes its send buffer. Safe to call
// more than once.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	for _, room := range c.rooms {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	c.closed = true
	close(c.send)
	connections.Dec()
}

// Publish sends a message to every client in room and returns how many
// clients accepted it.
func (h *Hub) Publish(room, msgType string, data any) (int, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", msgType, err)
	}
	frame, err := json.Marshal(Message{Type: msgType, Room: room, Data: raw, Timestamp: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("marshal frame: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
			delivered++
			messages.WithLabelValues(msgType, "delivered").Inc()
		default:
			messages.WithLabelValues(msgType, "dropped").Inc()
		}
	}
	return delivered, nil
}

// Size returns the number of clients in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Disconnect drops every connection of userID and returns how many were
// open. Clients reconnect with a fresh handshake, which re-reads the role.
func (h *Hub) Disconnect(userID int64) int {
	h.mu.RLock()
	var owned []*Client
	for c := range h.rooms[UserRoom(userID)] {
		owned = append(owned, c)
	}
	h.mu.RUnlock()

	for _, c := range owned {
		h.leave(c)
	}
	return len(owned)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	seen := make(map[*Client]bool)
	for _, members := range h.rooms {
		for c := range members {
			if !seen[c] {
				seen[c] = true
				all = append(all, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.leave(c)
	}
}
