package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event is a WebSocket message pushed to the clients watching a flow.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// flowEvent routes an event to one flow's room.
type flowEvent struct {
	FlowID uuid.UUID
	Event  Event
}

// Hub keeps one room of clients per order flow and fans events out to them.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *flowEvent
	done       chan struct{} // closed when Run returns

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *flowEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.flowID] == nil {
				h.rooms[client.flowID] = make(map[*Client]bool)
			}
			h.rooms[client.flowID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.Event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.rooms[ev.FlowID] {
				select {
				case client.send <- message:
				default:
					// Slow consumer.
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join hands client to Run. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave hands client to Run for removal. After the hub stops, closeAll has
// already released every client.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// remove drops client from its room and closes its send channel.
// Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.flowID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.flowID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			close(client.send)
		}
	}
	h.rooms = make(map[uuid.UUID]map[*Client]bool)
}

// BroadcastToFlow queues an event for every client watching flowID. The event
// is dropped when the queue is full or the hub has stopped; clients re-read
// the flow over HTTP on reconnect.
func (h *Hub) BroadcastToFlow(flowID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &flowEvent{FlowID: flowID, Event: event}:
	default:
	}
}

// Watchers returns the number of clients connected to flowID.
func (h *Hub) Watchers(flowID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[flowID])
}
