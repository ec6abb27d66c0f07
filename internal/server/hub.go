package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"openoutcry/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one connected websocket viewer. Its id is the user identity for
// the lifetime of the connection.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks live clients and delivers outbound messages. Delivery goes
// through each client's buffered send channel drained by its write pump, so
// per-connection ordering is preserved and a slow client is dropped rather
// than blocking the caller.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	onMessage    func(connID string, raw []byte)
	onDisconnect func(connID string)
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// SetHandlers wires the inbound message and disconnect callbacks. Must be
// called before Add.
func (h *Hub) SetHandlers(onMessage func(string, []byte), onDisconnect func(string)) {
	h.onMessage = onMessage
	h.onDisconnect = onDisconnect
}

// Add registers a new connection and starts its pumps.
func (h *Hub) Add(conn *websocket.Conn) *Client {
	client := &Client{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	metrics.ClientsConnected.Set(float64(count))
	log.Info().Str("connId", client.ID).Int("count", count).Msg("client connected")

	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	existing, ok := h.clients[client.ID]
	if ok && existing == client {
		delete(h.clients, client.ID)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.ClientsConnected.Set(float64(count))
	log.Info().Str("connId", client.ID).Int("count", count).Msg("client disconnected")

	if h.onDisconnect != nil {
		h.onDisconnect(client.ID)
	}
}

// Send queues a payload for one connection. A client whose buffer is full
// cannot keep up and is closed.
func (h *Hub) Send(connID string, payload []byte) {
	if payload == nil {
		return
	}

	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case client.send <- payload:
	default:
		log.Warn().Str("connId", connID).Msg("send buffer full, dropping client")
		client.conn.Close()
	}
}

// CloseAll tears down every live connection during shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait),
		)
		client.conn.Close()
	}
}

// writePump pumps queued messages to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
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
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps inbound frames into the dispatcher until the connection
// dies, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connId", c.ID).Msg("websocket read error")
			}
			return
		}
		if c.hub.onMessage != nil {
			c.hub.onMessage(c.ID, data)
		}
	}
}
