package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrHubBusy is returned when the outbound queue is full and a message was
// dropped.
var ErrHubBusy = errors.New("websocket hub queue full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Envelope is the frame written to clients.
type Envelope struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub manages WebSocket connections and routes in-app notifications to a
// user's connections, to a named group, or to everyone.
type Hub struct {
	clients    map[*client]struct{}
	mu         sync.RWMutex
	outbound   chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	logger     *slog.Logger
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	groups map[string]bool
}

type outbound struct {
	data  []byte
	match func(*client) bool
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		outbound:   make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop and returns when ctx is cancelled.
// Should be called as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "user_id", c.userID, "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "user_id", c.userID, "total_clients", total)

		case msg := <-h.outbound:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !msg.match(c) {
			continue
		}
		select {
		case c.send <- msg.data:
		default:
			// Client buffer full, drop it
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropping slow websocket client", "user_id", c.userID)
		}
	}
}

func (h *Hub) enqueue(eventType string, payload any, match func(*client) bool) error {
	data, err := json.Marshal(Envelope{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling websocket message: %w", err)
	}
	select {
	case h.outbound <- outbound{data: data, match: match}:
		return nil
	default:
		return ErrHubBusy
	}
}

// NotifyUser sends to every connection of userID.
func (h *Hub) NotifyUser(userID, eventType string, payload any) error {
	return h.enqueue(eventType, payload, func(c *client) bool { return c.userID == userID })
}

// NotifyGroup sends to every connection that joined group.
func (h *Hub) NotifyGroup(group, eventType string, payload any) error {
	return h.enqueue(eventType, payload, func(c *client) bool { return c.groups[group] })
}

// BroadcastAll sends to every connection.
func (h *Hub) BroadcastAll(eventType string, payload any) error {
	return h.enqueue(eventType, payload, func(*client) bool { return true })
}

// HandleWebSocket upgrades HTTP connections to WebSocket and registers the
// client under the user_id and comma separated groups query parameters.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: r.URL.Query().Get("user_id"),
		groups: make(map[string]bool),
	}
	for _, g := range strings.Split(r.URL.Query().Get("groups"), ",") {
		if g = strings.TrimSpace(g); g != "" {
			c.groups[g] = true
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection (handles pings/disconnects).
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsOnline reports whether userID has at least one open connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID == userID {
			return true
		}
	}
	return false
}
