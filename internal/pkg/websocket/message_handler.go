package websocket

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ReadMarker records that a user has seen a message
type ReadMarker interface {
	RecordRead(ctx context.Context, chatID, messageID, userID string) error
}

// InboundHandler processes events sent by connected clients. Only typing
// notices and read receipts are accepted; messages go through the REST API.
type InboundHandler struct {
	reads  ReadMarker
	hub    *Hub
	logger zerolog.Logger
}

// NewInboundHandler creates a new InboundHandler
func NewInboundHandler(reads ReadMarker, hub *Hub, logger zerolog.Logger) *InboundHandler {
	return &InboundHandler{
		reads:  reads,
		hub:    hub,
		logger: logger,
	}
}

// Handle dispatches one client event. Sender and chat are already pinned to
// the connection by the caller.
func (h *InboundHandler) Handle(event *Event) {
	switch event.Type {
	case EventTyping:
		h.hub.BroadcastToChat(&Event{
			Type:      EventTyping,
			ChatID:    event.ChatID,
			UserID:    event.UserID,
			Timestamp: event.Timestamp,
			Room:      event.Room,
		})
	case EventMessageRead:
		if event.MessageID == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// RecordRead broadcasts the receipt itself
		if err := h.reads.RecordRead(ctx, event.ChatID, event.MessageID, event.UserID); err != nil {
			h.logger.Warn().
				Err(err).
				Str("chatID", event.ChatID).
				Str("messageID", event.MessageID).
				Msg("Failed to record read receipt from WebSocket")
		}
	default:
		h.logger.Debug().Str("type", event.Type).Msg("Ignoring client event")
	}
}
