package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/models"
)

// Event types pushed to chat subscribers
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
	EventReactionAdded  = "reaction.added"
	EventPinChanged     = "pin.changed"
	EventMessageRead    = "message.read"
	EventAssistantState = "assistant.state"
	EventTyping         = "typing"
)

// Event is one notification sent over a chat stream
type Event struct {
	Type      string          `json:"type"`
	ChatID    string          `json:"chatId"`
	UserID    string          `json:"userId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	Emoji     string          `json:"emoji,omitempty"`
	Count     int             `json:"count,omitempty"`
	Pinned    bool            `json:"pinned,omitempty"`
	State     string          `json:"state,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	// Room overrides ChatID as the delivery key
	Room string `json:"-"`
}

func (e *Event) room() string {
	if e.Room != "" {
		return e.Room
	}
	return e.ChatID
}

// PrivateRoom names the room of one user inside a chat whose events must not
// reach the other subscribers of that chat id
func PrivateRoom(chatID, userID string) string {
	return chatID + "#" + userID
}

// Hub maintains the set of active clients and broadcasts events to them.
// Delivery is best-effort: events for chats without subscribers, or for
// clients whose buffer is full, are dropped and never replayed.
type Hub struct {
	// Registered clients organized by room
	clients map[string]map[*Client]bool

	// Events waiting to be fanned out
	broadcast chan *Event

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for concurrent access to clients map
	mu sync.RWMutex

	// Logger for Hub operations
	logger zerolog.Logger
}

// NewHub creates a new Hub instance
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]bool),
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run handles client registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.room]; !ok {
		h.clients[client.room] = make(map[*Client]bool)
	}
	h.clients[client.room][client] = true

	h.logger.Info().
		Str("chatID", client.chatID).
		Str("room", client.room).
		Str("userID", client.userID).
		Msg("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.room]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	if len(clients) == 0 {
		delete(h.clients, client.room)
	}

	h.logger.Info().
		Str("chatID", client.chatID).
		Str("userID", client.userID).
		Msg("Client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// broadcastEvent sends an event to all clients of its room
func (h *Hub) broadcastEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("chatID", event.ChatID).Msg("Failed to marshal event for broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[event.room()]
	if !ok {
		h.logger.Debug().Str("room", event.room()).Msg("No clients in room for broadcast")
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer, drop it
			h.removeLocked(client)
		}
	}

	h.logger.Debug().
		Str("chatID", event.ChatID).
		Str("type", event.Type).
		Int("clientCount", len(clients)).
		Msg("Event broadcasted to chat")
}

// BroadcastToChat queues an event for the subscribers of its room
func (h *Hub) BroadcastToChat(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Str("chatID", event.ChatID).Str("type", event.Type).Msg("Broadcast queue full, event dropped")
	}
}

// GetClientsCount returns the number of connected clients in a room
func (h *Hub) GetClientsCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[room])
}
