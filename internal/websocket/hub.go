// Package websocket broadcasts the monitoring event stream to
// connected clients: endpoint status updates, per-tick health
// snapshots, alert lifecycle events and monitoring start/stop markers.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 16,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		// Scrape/stream surface is deployed behind the operator's own
		// ingress; origin policy belongs there.
		return true
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	clientSendSize = 256
)

// Message is the wire envelope for every event.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one connected WebSocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub maintains the client set and fans broadcast messages out to it.
// It implements the scheduler's NotificationSink.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	getState   func() interface{}
}

// NewHub creates a hub. getState, when non-nil, supplies the payload
// for the initial state message sent to each new client and for
// requestData replies.
func NewHub(getState func() interface{}) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		getState:   getState,
	}
}

// SetStateGetter replaces the state getter.
func (h *Hub) SetStateGetter(getState func() interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getState = getState
}

func (h *Hub) stateGetter() func() interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.getState
}

// Run is the hub's main loop; it returns when ctx is done, closing
// every client connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
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
			h.mu.Unlock()
			log.Info().Str("client", client.id).Msg("WebSocket client connected")
			h.sendInitialState(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.mu.Unlock()
				log.Info().Str("client", client.id).Msg("WebSocket client disconnected")
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer: drop the client rather than the
					// whole broadcast loop.
					h.mu.Lock()
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
					h.mu.Unlock()
					log.Warn().Str("client", client.id).Msg("Dropping slow WebSocket client")
				}
			}
		}
	}
}

func (h *Hub) sendInitialState(client *Client) {
	getState := h.stateGetter()
	if getState == nil {
		return
	}
	msg := Message{Type: "initialState", Data: sanitizeData(getState())}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("client", client.id).Msg("Failed to marshal initial state")
		return
	}
	select {
	case client.send <- data:
	default:
		log.Warn().Str("client", client.id).Msg("Client send buffer full, skipping initial state")
	}
}

// HandleWebSocket upgrades an HTTP request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendSize),
		id:   fmt.Sprintf("client-%d", time.Now().UnixNano()),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnStatusUpdate broadcasts one endpoint's refreshed live status.
func (h *Hub) OnStatusUpdate(status models.EndpointStatus) {
	h.broadcastMessage(Message{Type: "statusUpdate", Data: status})
}

// OnHealthCheck broadcasts the per-tick aggregate snapshot.
func (h *Hub) OnHealthCheck(snapshot models.SystemMetricsSnapshot) {
	h.broadcastMessage(Message{Type: "healthCheck", Data: snapshot})
}

// OnAlert broadcasts a newly fired alert.
func (h *Hub) OnAlert(alert models.Alert) {
	h.broadcastMessage(Message{Type: "newAlert", Data: alert})
}

// OnAlertResolved broadcasts an alert resolution.
func (h *Hub) OnAlertResolved(alert models.Alert) {
	h.broadcastMessage(Message{Type: "alertResolved", Data: alert})
}

// OnMonitoringStarted broadcasts the start-of-monitoring marker.
func (h *Hub) OnMonitoringStarted(tenant string, at time.Time) {
	h.broadcastMessage(Message{Type: "monitoringStarted", Data: map[string]interface{}{
		"tenant":    tenant,
		"timestamp": at,
	}})
}

// OnMonitoringStopped broadcasts the end-of-monitoring marker.
func (h *Hub) OnMonitoringStopped(tenant string, at time.Time) {
	h.broadcastMessage(Message{Type: "monitoringStopped", Data: map[string]interface{}{
		"tenant":    tenant,
		"timestamp": at,
	}})
}

func (h *Hub) broadcastMessage(msg Message) {
	msg.Data = sanitizeData(msg.Data)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log.Warn().Str("type", msg.Type).Msg("WebSocket broadcast channel full, dropping message")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client", c.id).Msg("WebSocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("Ignoring malformed WebSocket message")
			continue
		}

		switch msg.Type {
		case "ping":
			pong := Message{Type: "pong", Data: map[string]int64{"timestamp": time.Now().Unix()}}
			if data, err := json.Marshal(pong); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		case "requestData":
			if getState := c.hub.stateGetter(); getState != nil {
				reply := Message{Type: "initialState", Data: sanitizeData(getState())}
				if data, err := json.Marshal(reply); err == nil {
					select {
					case c.send <- data:
					default:
					}
				}
			}
		default:
			log.Debug().Str("client", c.id).Str("type", msg.Type).Msg("Received WebSocket message")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush anything already queued in the same write cycle.
			n := len(c.send)
			for i := 0; i < n; i++ {
				select {
				case queued := <-c.send:
					if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
						return
					}
				default:
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sanitizeData replaces NaN/Inf floats with nil so the payload stays
// valid JSON. Structs are round-tripped through JSON into maps first.
func sanitizeData(data interface{}) interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return data
	}
	return sanitizeValue(decoded)
}

func sanitizeValue(data interface{}) interface{} {
	switch v := data.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	case map[string]interface{}:
		sanitized := make(map[string]interface{}, len(v))
		for k, val := range v {
			sanitized[k] = sanitizeValue(val)
		}
		return sanitized
	case []interface{}:
		sanitized := make([]interface{}, len(v))
		for i, val := range v {
			sanitized[i] = sanitizeValue(val)
		}
		return sanitized
	default:
		return v
	}
}
