package output

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/logger"
	"github.com/bryanchriswhite/CamWatch/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 2 // frames queued per viewer before dropping
)

// Hub is the websocket viewer sink. Each viewer gets its own small queue and
// writer goroutine, so one slow viewer only loses its own frames.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty viewer hub
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // viewers may be served from another origin
			},
		},
		metrics: m,
		clients: make(map[string]*client),
	}
}

// Name returns the sink name
func (h *Hub) Name() string {
	return "websocket"
}

// Count returns the number of connected viewers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver sends msg to every viewer whose queue has room
func (h *Hub) Deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.WithComponent("output").Warn().Err(err).Msg("Failed to marshal frame message")
		return
	}

	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.metrics.IncSinkDrops(h.Name())
		}
	}
}

// ServeHTTP upgrades the request and streams frames until the viewer leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("output").Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetViewers(n)
	logger.WithComponent("output").Info().Str("client", c.id).Int("viewers", n).Msg("Viewer connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetViewers(n)
	logger.WithComponent("output").Info().Str("client", c.id).Int("viewers", n).Msg("Viewer disconnected")
}

// readPump only exists to process control frames and notice disconnects
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Close disconnects every viewer and refuses new ones
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
	return nil
}
