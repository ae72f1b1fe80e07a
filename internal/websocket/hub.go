package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/hiswaca/etl-console/internal/model"
)

// Client represents a WebSocket subscriber of one channel (job id or upload channel)
type Client struct {
	Channel string
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast. A message carrying
// initial is addressed to target alone and built when the hub dequeues it.
type BroadcastMessage struct {
	Channel string
	Message []byte

	target  *Client
	initial func() interface{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for channel, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, channel)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Channel] == nil {
				h.clients[client.Channel] = make(map[*Client]bool)
			}
			h.clients[client.Channel][client] = true
			h.mu.Unlock()
			log.Printf("[WS] client registered for %s", client.Channel)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			log.Printf("[WS] client unregistered from %s", client.Channel)

		case msg := <-h.broadcast:
			if msg.initial != nil {
				h.sendInitial(msg.target, msg.initial)
				continue
			}
			h.mu.Lock()
			for client := range h.clients[msg.Channel] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// sendInitial runs inside the hub loop: every message queued before the
// subscription has been delivered, and anything snapshot misses is still
// queued behind it.
func (h *Hub) sendInitial(client *Client, snapshot func() interface{}) {
	data, err := json.Marshal(snapshot())
	if err != nil {
		log.Printf("[WS] failed to marshal initial state for %s: %v", client.Channel, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client.Channel][client] {
		return
	}
	select {
	case client.Send <- data:
	default:
		h.removeLocked(client)
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.Channel]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.Channel)
	}
}

// Stop ends Run and closes every subscriber.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Subscribers returns the number of clients on a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Subscribe registers client and then queues initial behind every message
// already published on the hub. Changes that race the subscription show up
// either in the initial state or after it, never in neither.
func (h *Hub) Subscribe(client *Client, initial func() interface{}) {
	h.Register(client)
	if initial == nil {
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{Channel: client.Channel, target: client, initial: initial}:
	case <-h.stop:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// publish never blocks the caller; messages are dropped when the queue is full.
func (h *Hub) publish(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] failed to marshal message for %s: %v", channel, err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{Channel: channel, Message: data}:
	case <-h.stop:
	default:
		log.Printf("[WS] broadcast queue full, dropping message for %s", channel)
	}
}

// JobChanged pushes a job snapshot to the job's subscribers
func (h *Hub) JobChanged(job model.IngestionJob) {
	h.publish(job.ID, model.WSStatusMessage{
		Type:  model.WSMessageTypeStatus,
		JobID: job.ID,
		Job:   job,
	})
}

// LineAppended pushes one narration line
func (h *Hub) LineAppended(jobID string, index int, line string) {
	h.publish(jobID, model.WSLogMessage{
		Type:  model.WSMessageTypeLog,
		JobID: jobID,
		Index: index,
		Line:  line,
	})
}

// BroadcastProgress sends the backend status of an upload being processed
func (h *Hub) BroadcastProgress(channel string, status model.UploadStatus, step string) {
	h.publish(channel, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       channel,
		Status:      status,
		CurrentStep: step,
	})
}

// BroadcastComplete sends a completion message to all channel subscribers
func (h *Hub) BroadcastComplete(channel string, result interface{}) {
	h.publish(channel, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  channel,
		Result: result,
	})
}

// BroadcastError sends an error message to all channel subscribers
func (h *Hub) BroadcastError(channel string, code, message string) {
	h.publish(channel, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: channel,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// HandleConnection serves one WebSocket connection. initial, when non-nil, is
// evaluated once the client is subscribed so late subscribers see the current
// state.
func (h *Hub) HandleConnection(c *websocket.Conn, channel string, initial func() interface{}) {
	client := &Client{
		Channel: channel,
		Conn:    c,
		Send:    make(chan []byte, 256),
	}

	h.Subscribe(client, initial)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] read error on %s: %v", channel, err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.publishTo(client, data)
		}
	}
}

// publishTo replies to a single client through the hub so Send is never
// written after the hub closed it.
func (h *Hub) publishTo(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[client.Channel]; ok && clients[client] {
		select {
		case client.Send <- data:
		default:
		}
	}
}
