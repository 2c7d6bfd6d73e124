package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run event types
const (
	EventRunProgress  = "run:progress"
	EventRunCompleted = "run:completed"
	EventRunFailed    = "run:failed"
)

// RunChannelPrefix prefixes the Redis channel of every run ("runs:<id>")
const RunChannelPrefix = "runs:"

const writeWait = 10 * time.Second

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunEvent reports the state of a pipeline run
type RunEvent struct {
	Type      string   `json:"type"`
	RunID     string   `json:"runId"`
	Percent   int      `json:"percent"`
	Done      int      `json:"done,omitempty"`
	Total     int      `json:"total,omitempty"`
	Output    string   `json:"output,omitempty"`
	Files     []string `json:"files,omitempty"`
	Succeeded int      `json:"succeeded,omitempty"`
	Failed    int      `json:"failed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	metrics    *metrics.Metrics
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub. An empty origin list accepts any origin.
func NewHub(logger *zap.Logger, allowedOrigins []string, m *metrics.Metrics) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || a == origin || a == u.Scheme+"://"+u.Host {
				return true
			}
		}
		return false
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.recordConnection(true)
			h.logger.Debug("Client connected", zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.recordConnection(false)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client disconnected", zap.Int("total_clients", total))
		}
	}
}

// HandleConnection handles a new WebSocket connection
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// SendToRun sends a message to all clients subscribed to a run
func (h *Hub) SendToRun(runID string, msgType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msgBytes, err := json.Marshal(Message{Type: msgType, Payload: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.mu.RLock()
		subscribed := client.subscriptions[runID]
		client.mu.RUnlock()

		if subscribed {
			select {
			case client.send <- msgBytes:
				if h.metrics != nil {
					h.metrics.RecordWebSocketMessage(msgType)
				}
			default:
				// Client buffer full, skip
			}
		}
	}

	return nil
}

// PublishRunEvent delivers a run event to its subscribers
func (h *Hub) PublishRunEvent(_ context.Context, event RunEvent) error {
	return h.SendToRun(event.RunID, event.Type, event)
}

// Relay forwards run events published on Redis by workers until ctx is done.
func (h *Hub) Relay(ctx context.Context, client *redis.Client) {
	pubsub := client.PSubscribe(ctx, RunChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event RunEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Warn("Invalid run event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			h.SendToRun(event.RunID, event.Type, event)
		}
	}
}

func (h *Hub) recordConnection(connected bool) {
	if h.metrics != nil {
		h.metrics.RecordWebSocketConnection(connected)
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Warn("Invalid WebSocket message", zap.Error(err))
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.hub.logger.Error("WebSocket write error", zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	var payload struct {
		RunID string `json:"runId"`
	}

	switch msg.Type {
	case "subscribe":
		if err := json.Unmarshal(msg.Payload, &payload); err == nil && payload.RunID != "" {
			c.mu.Lock()
			c.subscriptions[payload.RunID] = true
			c.mu.Unlock()
			c.hub.logger.Debug("Client subscribed to run", zap.String("run_id", payload.RunID))
		}

	case "unsubscribe":
		if err := json.Unmarshal(msg.Payload, &payload); err == nil {
			c.mu.Lock()
			delete(c.subscriptions, payload.RunID)
			c.mu.Unlock()
			c.hub.logger.Debug("Client unsubscribed from run", zap.String("run_id", payload.RunID))
		}

	case "ping":
		response, _ := json.Marshal(Message{Type: "pong"})
		select {
		case c.send <- response:
		default:
		}
	}
}
