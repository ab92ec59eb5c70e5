package services

import (
	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

// Services defined in this package:
// - AuthService: registration, login and the user directory
// - ChatService: chat creation, listing, direct chats and deletion
// - MessageService: the message store (append, list, edit, delete, pin, read, search)
// - AttachmentService: attachment uploads, URLs and placeholder repair
// - ReactionService: emoji counters
// - ForwardService: copying a message into another chat
// - ThreadService: one-hop reply threads

// EventBroadcaster receives chat events after a mutation succeeded
type EventBroadcaster interface {
	BroadcastToChat(event *websocket.Event)
}

// AssistantSubmitter starts the assistant turn that answers a user message.
// Submit must return without waiting for the reply.
type AssistantSubmitter interface {
	Submit(chatID string, userMessage *models.Message)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToChat(*websocket.Event) {}

func orNoop(b EventBroadcaster) EventBroadcaster {
	if b == nil {
		return noopBroadcaster{}
	}
	return b
}
