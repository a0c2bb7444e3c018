package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"kick-haven/internal/forum"
	"kick-haven/internal/logging"

	"github.com/google/uuid"
)

const (
	// hubQueueSize bounds events waiting for the hub loop. Publish drops
	// events rather than block a request when it is full.
	hubQueueSize = 256

	// clientQueueSize bounds events waiting for one connection.
	clientQueueSize = 64
)

// MessageToSend defines the structure for sending a message to a specific user.
type MessageToSend struct {
	TargetUserID uuid.UUID
	Payload      []byte
}

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	// Registered clients. Maps user ID to a set of active client connections.
	clients map[uuid.UUID]map[*Client]bool

	broadcast  chan []byte
	sendDirect chan *MessageToSend
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// protects clients for ConnectionCount
	mu sync.RWMutex
}

var _ forum.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, hubQueueSize),
		sendDirect: make(chan *MessageToSend, hubQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID]map[*Client]bool),
	}
}

// Run processes registrations and deliveries until ctx is cancelled, then
// closes every client's send queue.
func (h *Hub) Run(ctx context.Context) {
	logging.Info().Msg("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			logging.Info().Msg("websocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.UserID]; !ok {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			n := len(h.clients[client.UserID])
			h.mu.Unlock()
			logging.Debug().Str("user", client.UserID.String()).Int("connections", n).Msg("websocket client registered")

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, userClients := range h.clients {
				for client := range userClients {
					client.enqueue(message)
				}
			}
			h.mu.RUnlock()

		case direct := <-h.sendDirect:
			h.mu.RLock()
			userClients := h.clients[direct.TargetUserID]
			for client := range userClients {
				client.enqueue(direct.Payload)
			}
			h.mu.RUnlock()
			if len(userClients) == 0 {
				logging.Debug().Str("user", direct.TargetUserID.String()).Msg("user not connected, direct event skipped")
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userClients, ok := h.clients[client.UserID]
	if !ok || !userClients[client] {
		return
	}
	delete(userClients, client)
	close(client.send)
	if len(userClients) == 0 {
		delete(h.clients, client.UserID)
	}
	logging.Debug().Str("user", client.UserID.String()).Int("remaining", len(userClients)).Msg("websocket client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, userClients := range h.clients {
		for client := range userClients {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}

// Publish encodes event and queues it for delivery. Events with a recipient
// go only to that user's connections. It never blocks.
func (h *Hub) Publish(event forum.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("type", event.Type).Msg("failed to encode event")
		return
	}

	if event.Recipient != nil {
		select {
		case h.sendDirect <- &MessageToSend{TargetUserID: *event.Recipient, Payload: payload}:
		default:
			logging.Warn().Str("type", event.Type).Msg("hub direct queue full, event dropped")
		}
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logging.Warn().Str("type", event.Type).Msg("hub broadcast queue full, event dropped")
	}
}

// ConnectionCount reports the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, userClients := range h.clients {
		n += len(userClients)
	}
	return n
}
