package socket

import (
	"context"
	"encoding/json"
	"sync"

	"voicethoughts/internal/thought/model"
	"voicethoughts/pkg/logger"
	"voicethoughts/pkg/metrics"
)

const (
	ThoughtCreatedType = "THOUGHT_CREATED" // A thought was saved by one of the owner's sessions
	ReadyType          = "READY"           // Sent once after the client is registered
)

type WSMessage struct {
	Type    string          `json:"type"`
	OwnerID string          `json:"owner_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub keeps one room per owner. Messages only ever go to the room of the
// owner they belong to.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.Mutex
	metrics    *metrics.Metrics
	done       chan struct{}

	allowedOrigins map[string]bool
}

// NewHub creates a hub; m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		metrics:    m,
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, after closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for ownerID, clients := range h.Rooms {
				for client := range clients {
					close(client.Send)
				}
				delete(h.Rooms, ownerID)
			}
			h.mu.Unlock()
			h.setGauge()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.OwnerID] == nil {
				h.Rooms[client.OwnerID] = make(map[*Client]bool)
			}
			h.Rooms[client.OwnerID][client] = true
			h.mu.Unlock()
			h.setGauge()

			ready, _ := json.Marshal(WSMessage{Type: ReadyType, OwnerID: client.OwnerID})
			client.Send <- ready

		case client := <-h.Unregister:
			h.remove(client)

		case msg := <-h.Broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			// Copy recipients so no lock is held while sending.
			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.OwnerID]))
			for client := range h.Rooms[msg.OwnerID] {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// The client is lagging; drop it instead of blocking the hub.
					logger.Sugar.Warnf("Client of user %s has a full send buffer. Disconnecting.", client.OwnerID)
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.Rooms[client.OwnerID][client]; ok {
		delete(h.Rooms[client.OwnerID], client)
		close(client.Send)
		if len(h.Rooms[client.OwnerID]) == 0 {
			delete(h.Rooms, client.OwnerID)
		}
	}
	h.mu.Unlock()
	h.setGauge()
}

// PublishThought queues t for the owner's live clients. It never blocks; when
// the queue is full the event is dropped since clients can always re-list.
func (h *Hub) PublishThought(t model.Thought) {
	payload, err := json.Marshal(t)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling thought %s: %v", t.ID, err)
		return
	}
	select {
	case h.Broadcast <- WSMessage{Type: ThoughtCreatedType, OwnerID: t.OwnerID, Payload: payload}:
	default:
		logger.Sugar.Warnf("Live feed queue full, dropping event for thought %s", t.ID)
	}
}

// AllowOrigins restricts browser handshakes to the given origins. A "*"
// entry allows any origin; with no call every origin is allowed.
func (h *Hub) AllowOrigins(origins []string) {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	h.mu.Lock()
	h.allowedOrigins = allowed
	h.mu.Unlock()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// ClientCount returns the number of live clients connected for ownerID.
func (h *Hub) ClientCount(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[ownerID])
}

func (h *Hub) setGauge() {
	if h.metrics == nil {
		return
	}
	h.mu.Lock()
	n := 0
	for _, clients := range h.Rooms {
		n += len(clients)
	}
	h.mu.Unlock()
	h.metrics.LiveClients.Set(float64(n))
}
