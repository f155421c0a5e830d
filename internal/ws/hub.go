package ws

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Client is one live relay connection.
type Client struct {
	id     string
	remote string
	conn   *websocket.Conn
	logger *zap.Logger

	// cancelCalls aborts the connection's in-flight upstream call.
	cancelCalls context.CancelFunc
}

// Hub tracks live relay connections so they can be counted and closed
// together on shutdown. Connections never talk to each other through it.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("relay client registered", zap.String("conn_id", c.id))
}

// Unregister removes a client from the hub. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("relay client unregistered", zap.String("conn_id", c.id))
	}
}

// ClientCount returns the number of live clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll aborts every client's in-flight call and closes its connection
// with the given status. Closes run concurrently; CloseAll returns when all
// close handshakes have finished or timed out.
func (h *Hub) CloseAll(code websocket.StatusCode, reason string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		if c.cancelCalls != nil {
			c.cancelCalls()
		}
		if c.conn == nil {
			continue
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if err := c.conn.Close(code, reason); err != nil {
				h.logger.Debug("websocket close failed", zap.String("conn_id", c.id), zap.Error(err))
			}
		}(c)
	}
	wg.Wait()
}
