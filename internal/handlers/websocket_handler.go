package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"number-lookup-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

const keepaliveInterval = 30 * time.Second

// wsClient serializes writes to one connection. The keepalive loop, the
// control-message responder and the hub broadcast all write, and
// gorilla/websocket allows only one concurrent writer per connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// WebSocketHandler fans usage events out to connected dashboard clients.
// Events originate from the quota ledger, which publishes every consumed
// request on a Redis channel, so every webserver instance sees the full
// stream regardless of which instance served the request.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for testing
			},
		},
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

func (h *WebSocketHandler) HandleConnections(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	client := &wsClient{conn: ws}
	defer func() {
		h.unregister <- client
		ws.Close()
	}()

	h.register <- client

	go h.readLoop(client)

	for {
		time.Sleep(keepaliveInterval)
		if err := client.writeMessage(websocket.PingMessage, []byte{}); err != nil {
			return
		}
	}
}

// readLoop answers the small client-side protocol: subscribe acks and pings.
// Usage events themselves arrive via the hub, not as replies.
func (h *WebSocketHandler) readLoop(client *wsClient) {
	for {
		var msg map[string]interface{}
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		switch msg["type"] {
		case "subscribe":
			client.writeJSON(map[string]interface{}{
				"type":      "subscribed",
				"message":   "Successfully subscribed to usage updates",
				"timestamp": time.Now().Unix(),
			})

		case "ping":
			client.writeJSON(map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			})

		default:
			client.writeJSON(map[string]interface{}{
				"type":      "error",
				"message":   "Unknown message type",
				"timestamp": time.Now().Unix(),
			})
		}
	}
}

func (h *WebSocketHandler) RunHub() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.writeMessage(websocket.TextMessage, message); err != nil {
					client.conn.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

// SubscribeUsage pumps the ledger's Redis usage channel into the hub.
// Payloads are relayed as-is; the ledger already publishes JSON.
func (h *WebSocketHandler) SubscribeUsage(ctx context.Context, client *redis.Client) {
	sub := client.Subscribe(ctx, services.UsageChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.Println("Usage updates subscription closed")
				return
			}
			h.broadcast <- []byte(msg.Payload)
		}
	}
}
