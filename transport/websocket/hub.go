package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Queued events waiting for the Run loop
	broadcastBuffer = 256
)

// Event names
const (
	EventStateUpdate    = "state_update"
	EventSearchProgress = "search_progress"
	EventSolved         = "solved"
	EventSessionDeleted = "session_deleted"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		return true
	},
}

// SolveTopic is the topic search progress for a puzzle is published on
func SolveTopic(puzzleName string) string {
	return "solve:" + puzzleName
}

// Message represents a WebSocket message
type Message struct {
	Topic       string              `json:"topic"`
	Event       string              `json:"event,omitempty"`
	PatrolState *engine.PatrolState `json:"patrol_state,omitempty"`
	Progress    *Progress           `json:"progress,omitempty"`
	Data        interface{}         `json:"data,omitempty"`
}

// Progress reports how far an obstruction search has got
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Client represents a WebSocket client
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	topic string
}

// Hub maintains the set of active clients and broadcasts messages. Clients
// subscribe to one topic: a session ID for patrol updates, or a SolveTopic
// for search progress.
type Hub struct {
	mu sync.RWMutex

	// Registered clients by topic
	topics map[string]map[*Client]bool

	// Queued messages for the Run loop
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	done chan struct{}
	once sync.Once
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It returns after Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop ends the Run loop and disconnects every client
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// ServeWS upgrades the request and subscribes the connection to topic
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		topic: topic,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// BroadcastToSession sends a patrol state update to all clients watching a session
func (h *Hub) BroadcastToSession(sessionID string, state *engine.PatrolState) {
	h.broadcastMessage(&Message{
		Topic:       sessionID,
		Event:       EventStateUpdate,
		PatrolState: state,
	})
}

// BroadcastProgress publishes obstruction search progress for a puzzle.
// It never blocks; progress is dropped while the queue is full.
func (h *Hub) BroadcastProgress(puzzleName string, done, total int) {
	message := &Message{
		Topic:    SolveTopic(puzzleName),
		Event:    EventSearchProgress,
		Progress: &Progress{Done: done, Total: total},
	}

	select {
	case h.broadcast <- message:
	default:
	}
}

// BroadcastEvent queues a custom event for all clients of a topic
func (h *Hub) BroadcastEvent(topic string, event string, data interface{}) {
	message := &Message{
		Topic: topic,
		Event: event,
		Data:  data,
	}

	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// ClientCount returns the number of clients subscribed to a topic
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// registerClient adds a client to its topic
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[client.topic] == nil {
		h.topics[client.topic] = make(map[*Client]bool)
	}
	h.topics[client.topic][client] = true

	log.Printf("Client registered for %s (total clients: %d)",
		client.topic, len(h.topics[client.topic]))
}

// unregisterClient removes a client from its topic
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.topics[client.topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.send)

	// Clean up empty topics
	if len(clients) == 0 {
		delete(h.topics, client.topic)
	}

	log.Printf("Client unregistered from %s (remaining clients: %d)",
		client.topic, len(clients))
}

// broadcastMessage sends a message to all clients of its topic. Clients
// whose send buffer is full are dropped.
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Failed to marshal broadcast message: %v", err)
		return
	}

	var slow []*Client

	h.mu.RLock()
	for client := range h.topics[message.Topic] {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.unregisterClient(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, clients := range h.topics {
		for client := range clients {
			close(client.send)
		}
		delete(h.topics, topic)
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Incoming messages are ignored; reading keeps the connection alive
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One message per frame so clients can decode each as JSON
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
