// Package wsgateway is the realtime channel from §6.4: a gorilla/websocket
// hub that re-emits alert_created/alert_updated/alert_resolved events to
// every connected subscriber. Modeled directly on the teacher's
// internal/websocket Hub (register/unregister channels, a broadcast
// channel, origin allowlisting, NaN/Inf sanitization before marshal).
package wsgateway

import (
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/models"
)

// Message is the envelope written to every connected client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one connected WebSocket subscriber.
type Client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans Alert events out to every connected WebSocket client. Safe
// for concurrent use; Run must be started exactly once before
// HandleWebSocket is wired into a router.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message

	mu             sync.RWMutex
	allowedOrigins []string
}

// NewHub constructs an un-started Hub. Call go hub.Run() before serving.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 64),
	}
}

// SetAllowedOrigins restricts the upgrader's Origin check; an empty list
// allows any origin (same as the teacher's default for local dev).
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowedOrigins = origins
}

func (h *Hub) originAllowed(origin string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandleWebSocket upgrades the request and registers a new client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader.CheckOrigin = func(r *http.Request) bool {
		return h.originAllowed(r.Header.Get("Origin"))
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("wsgateway: upgrade failed")
		return
	}

	client := &Client{conn: conn, send: make(chan Message, 16)}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

// Run processes register/unregister and fans broadcast messages out to
// every client. Must run in its own goroutine for the Hub's lifetime.
func (h *Hub) Run() {
	for {
		select {
		case c, ok := <-h.register:
			if !ok {
				return
			}
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client: drop it rather than block the fan-out
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// publish sends a Message to every connected client without blocking the
// caller if the broadcast channel is briefly full.
func (h *Hub) publish(eventType string, alert *models.Alert) {
	select {
	case h.broadcast <- Message{Type: eventType, Data: sanitizeData(toJSONable(alert))}:
	default:
		log.Warn().Str("event_type", eventType).Msg("wsgateway: broadcast channel full, dropping event")
	}
}

// Publish satisfies alertengine.Publisher / eventbus.Observer so the Hub
// can be registered directly on the event bus.
func (h *Hub) Publish(eventType string, alert *models.Alert) {
	h.publish(eventType, alert)
}

func toJSONable(alert *models.Alert) interface{} {
	b, err := json.Marshal(alert)
	if err != nil {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}

// sanitizeData recursively replaces NaN/Inf float values with 0 so the
// JSON encoder never fails on an otherwise-valid payload.
func sanitizeData(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = sanitizeData(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = sanitizeData(val)
		}
		return out
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0.0
		}
		return v
	default:
		return v
	}
}
