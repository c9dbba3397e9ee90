package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event names pushed to connected clients.
const (
	EventPointsEarned       = "points_earned"
	EventPointsSpent        = "points_spent"
	EventBadgeUnlocked      = "badge_unlocked"
	EventRedemptionRequested = "redemption_requested"
	EventRedemptionResolved  = "redemption_resolved"
	EventReadingUpdated      = "reading_updated"
)

// Message is a real-time notification scoped to one group.
type Message struct {
	Event  string         `json:"event"`
	UserID int64          `json:"user_id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// Hub tracks connected clients per group and fans events out to the
// group they belong to. A family only ever sees its own activity.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]int64
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]int64),
		logger:  logger,
	}
}

// Register adds a client scoped to a group.
func (h *Hub) Register(c *Client, groupID int64) {
	h.mu.Lock()
	h.clients[c] = groupID
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every client in the group. A client
// with a full buffer misses the message rather than blocking the rest.
func (h *Hub) Broadcast(groupID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c, gid := range h.clients {
		if gid != groupID {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients across groups.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
