package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mtr002/linkboard/internal/logger"
)

const sendBuffer = 256

// Event is the frame pushed to every dashboard client.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type Hub struct {
	clients    map[*Client]struct{}
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Logger.Debug().Int("clients", total).Msg("WebSocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					logger.Logger.Warn().Msg("Dropping WebSocket client: send buffer full")
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			logger.Logger.Info().Msg("WebSocket hub stopped")
			return
		}
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a raw frame. Frames are dropped when the queue is full
// or the hub has stopped.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		logger.Logger.Warn().Msg("WebSocket broadcast queue full, dropping message")
	}
}

// Notify encodes an event and broadcasts it.
func (h *Hub) Notify(event string, data any) {
	message, err := json.Marshal(Event{Type: event, Data: data, Timestamp: time.Now()})
	if err != nil {
		logger.Logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}
	h.Broadcast(message)
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
