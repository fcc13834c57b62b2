package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // pages are served from the same host
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	wineID int64 // 0 means every wine
}

type message struct {
	wineID int64
	data   []byte
}

// Hub fans collection changes out to open pages. Run owns the client set.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "wine_id", client.wineID)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				slog.Debug("ws client disconnected")
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.wineID != 0 && client.wineID != msg.wineID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// buffer full
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	observability.WSConnections.Dec()
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	close(h.done)
}

// BroadcastEvent sends a collection change to interested clients.
func (h *Hub) BroadcastEvent(evt models.WineEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{wineID: evt.WineID, data: data}:
	case <-h.done:
	}
}

// Notify lets the hub receive events directly when no broker is configured.
func (h *Hub) Notify(_ context.Context, evt models.WineEvent) {
	h.BroadcastEvent(evt)
}

// HandleEvent adapts BroadcastEvent to a queue consumer callback.
func (h *Hub) HandleEvent(_ context.Context, evt models.WineEvent) error {
	h.BroadcastEvent(evt)
	return nil
}

// HandleWS handles WebSocket upgrade requests. ?wine_id= limits the client
// to one record's changes.
func (h *Hub) HandleWS(c *gin.Context) {
	var wineID int64
	if v := c.Query("wine_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wine_id"})
			return
		}
		wineID = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 64),
		wineID: wineID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
