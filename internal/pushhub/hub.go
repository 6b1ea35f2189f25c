// Package pushhub broadcasts live session snapshots to connected websocket
// subscribers. Grounded on the teacher's internal/websocket hub/client pair,
// trimmed to the single message type this system produces.
package pushhub

import (
	"context"
	"sort"
	"sync"

	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/metrics"
	"github.com/mondominator/opsdec/internal/models"
)

// Message types for PushHub websocket traffic.
const (
	MessageTypeSessionUpdate = "session.update"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is the envelope written to every connected client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of connected clients and fans broadcasts out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty Hub. Call Serve to start its dispatch loop.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// String implements fmt.Stringer so suture identifies this service in logs.
func (h *Hub) String() string { return "push-hub" }

// Serve implements suture.Service: dispatches register/unregister events and
// broadcast messages until ctx is canceled, then closes every client.
//
// Client lifecycle events take priority over broadcasts so the client set is
// always consistent before a message is fanned out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAllClients()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.dispatch(message)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	metrics.PushHubClients.Set(float64(count))
	logging.Info().Int("clients", count).Msg("pushhub client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.PushHubClients.Set(float64(count))
	logging.Info().Int("clients", count).Msg("pushhub client disconnected")
}

// dispatch fans a message out to every client in deterministic (ID-ordered)
// order, dropping clients whose send buffer is full.
func (h *Hub) dispatch(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var dropped []*Client
	for _, c := range clients {
		select {
		case c.send <- message:
		default:
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		close(c.send)
		delete(h.clients, c)
		metrics.PushHubBroadcastsDropped.Inc()
	}
	if len(dropped) > 0 {
		metrics.PushHubClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.PushHubClients.Set(0)
	logging.Info().Msg("pushhub closed all clients during shutdown")
}

// Broadcast implements sessionengine.Broadcaster: it publishes the current
// set of live sessions as a session.update message. Non-blocking: if the
// internal broadcast channel is full the message is dropped and counted.
func (h *Hub) Broadcast(sessions []*models.Session) {
	message := Message{Type: MessageTypeSessionUpdate, Data: sessions}
	select {
	case h.broadcast <- message:
	default:
		metrics.PushHubBroadcastsDropped.Inc()
		logging.Warn().Msg("pushhub broadcast channel full, dropping session.update")
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
