package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/auth"
	"github.com/yigit/educhat/internal/app/chatview"
	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/app/threads"
	"github.com/yigit/educhat/internal/pkg/apperrors"
	"github.com/yigit/educhat/internal/pkg/metrics"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

// MessageService is the message store of every chat
type MessageService interface {
	// Append stores a new message. The reserved assistant chat accepts
	// messages while absent from the store; they are returned unpersisted.
	Append(ctx context.Context, chatID string, draft models.MessageDraft) (*models.Message, error)
	// CanPost checks that sender may append to chatID
	CanPost(ctx context.Context, chatID, sender string) error
	List(ctx context.Context, chatID, actor string) ([]*models.Message, error)
	Get(ctx context.Context, chatID, id, actor string) (*models.Message, error)
	Edit(ctx context.Context, chatID, id, actor string, patch models.MessagePatch) (*models.Message, error)
	Delete(ctx context.Context, chatID, id, actor string) error
	SetPinned(ctx context.Context, chatID, id, actor string, pinned bool) (*models.Chat, error)
	MarkRead(ctx context.Context, chatID, id, userID string) (*models.Message, error)
	RecordRead(ctx context.Context, chatID, id, userID string) error
	Search(ctx context.Context, chatID, actor, query string) ([]chatview.Match, error)
	SetAssistant(assistant AssistantSubmitter)
}

type messageServiceImpl struct {
	store     repositories.Store
	authz     *auth.AuthorizationService
	ids       *models.IDGenerator
	events    EventBroadcaster
	assistant AssistantSubmitter
	mu        sync.RWMutex
	logger    zerolog.Logger
}

// NewMessageService creates a new MessageService
func NewMessageService(
	store repositories.Store,
	authz *auth.AuthorizationService,
	ids *models.IDGenerator,
	events EventBroadcaster,
	logger zerolog.Logger,
) MessageService {
	return &messageServiceImpl{
		store:  store,
		authz:  authz,
		ids:    ids,
		events: orNoop(events),
		logger: logger,
	}
}

// SetAssistant wires the dispatcher that answers assistant chats. The
// dispatcher itself appends through this service, hence the setter.
func (s *messageServiceImpl) SetAssistant(assistant AssistantSubmitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant = assistant
}

func (s *messageServiceImpl) getAssistant() AssistantSubmitter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assistant
}

func normalizeDraft(draft models.MessageDraft) (models.MessageDraft, error) {
	draft.Text = strings.TrimSpace(draft.Text)
	if draft.Sender == "" {
		return draft, apperrors.NewValidationError("sender", "sender is required")
	}
	if draft.Text == "" && (draft.File == nil || draft.File.StoredName == "") {
		return draft, apperrors.NewValidationError("text", "text or file is required")
	}
	if draft.Type == "" {
		if draft.File != nil {
			draft.Type = models.TypeForMime(draft.File.MimeType)
		} else {
			draft.Type = models.MessageTypeText
		}
	}
	if !draft.Type.Valid() {
		return draft, apperrors.NewValidationError("type", "unknown message type")
	}
	return draft, nil
}

// Append stores a new message at the end of the chat
func (s *messageServiceImpl) Append(ctx context.Context, chatID string, draft models.MessageDraft) (*models.Message, error) {
	draft, err := normalizeDraft(draft)
	if err != nil {
		return nil, err
	}

	chat, ephemeral, err := s.authz.ResolveChat(ctx, chatID, draft.Sender)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(draft.Sender) {
		return nil, apperrors.ErrNotChatMember
	}

	id, now := s.ids.Next()
	if err := threads.CheckReply(id, draft.ReplyTo); err != nil {
		return nil, err
	}
	if draft.ReplyTo != "" {
		if ephemeral {
			return nil, fmt.Errorf("reply target %s: %w", draft.ReplyTo, apperrors.ErrMessageNotFound)
		}
		if _, err := s.store.GetMessage(ctx, chatID, draft.ReplyTo); err != nil {
			if errors.Is(err, apperrors.ErrMessageNotFound) {
				return nil, fmt.Errorf("reply target %s: %w", draft.ReplyTo, err)
			}
			return nil, err
		}
	}

	message := &models.Message{
		ID:        id,
		ChatID:    chatID,
		Sender:    draft.Sender,
		Text:      draft.Text,
		Type:      draft.Type,
		File:      draft.File,
		CreatedAt: now,
		Reactions: map[string]int{},
		ReplyTo:   draft.ReplyTo,
		ReadBy:    []string{},
		Status:    models.MessageStatusConfirmed,
	}

	if !ephemeral {
		if err := s.store.AppendMessage(ctx, message); err != nil {
			s.logger.Error().Err(err).Str("chatID", chatID).Msg("Failed to append message")
			return nil, err
		}
	}

	audience := draft.Audience
	if audience == "" {
		audience = draft.Sender
	}
	metrics.MessagesAppended.WithLabelValues(string(message.Type)).Inc()
	s.events.BroadcastToChat(&websocket.Event{
		Type:      websocket.EventMessageCreated,
		ChatID:    chatID,
		UserID:    message.Sender,
		Room:      s.authz.EventRoom(chatID, audience),
		MessageID: message.ID,
		Message:   message.Clone(),
		Timestamp: now,
	})
	s.logger.Debug().
		Str("chatID", chatID).
		Str("messageID", message.ID).
		Bool("ephemeral", ephemeral).
		Msg("Message appended")

	if s.shouldAnswer(chat, message) {
		if assistant := s.getAssistant(); assistant != nil {
			assistant.Submit(chatID, message.Clone())
		}
	}
	return message, nil
}

// CanPost resolves the chat like Append does and checks membership
func (s *messageServiceImpl) CanPost(ctx context.Context, chatID, sender string) error {
	chat, _, err := s.authz.ResolveChat(ctx, chatID, sender)
	if err != nil {
		return err
	}
	if !chat.HasMember(sender) {
		return apperrors.ErrNotChatMember
	}
	return nil
}

// shouldAnswer reports whether the assistant replies to message
func (s *messageServiceImpl) shouldAnswer(chat *models.Chat, message *models.Message) bool {
	return s.authz.IsAssistantChat(chat) &&
		message.Sender != s.authz.BotUserID() &&
		message.Type == models.MessageTypeText &&
		message.Text != ""
}

// List returns the messages of a chat in insertion order
func (s *messageServiceImpl) List(ctx context.Context, chatID, actor string) ([]*models.Message, error) {
	chat, ephemeral, err := s.authz.ResolveChat(ctx, chatID, actor)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		return []*models.Message{}, nil
	}
	if !chat.HasMember(actor) {
		return nil, apperrors.ErrNotChatMember
	}
	return s.store.ListMessages(ctx, chatID)
}

// Get returns one message
func (s *messageServiceImpl) Get(ctx context.Context, chatID, id, actor string) (*models.Message, error) {
	if _, err := s.authz.ValidateChatMember(ctx, chatID, actor); err != nil {
		return nil, err
	}
	return s.store.GetMessage(ctx, chatID, id)
}

// Edit replaces the text of a message; only its sender may edit it
func (s *messageServiceImpl) Edit(ctx context.Context, chatID, id, actor string, patch models.MessagePatch) (*models.Message, error) {
	text := strings.TrimSpace(patch.Text)
	if text == "" {
		return nil, apperrors.NewValidationError("text", "text is required")
	}

	existing, err := s.Get(ctx, chatID, id, actor)
	if err != nil {
		return nil, err
	}
	if existing.Sender != actor {
		return nil, apperrors.NewForbiddenError("only the sender can edit a message")
	}

	updated, err := s.store.UpdateMessageText(ctx, chatID, id, text, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Str("chatID", chatID).Str("messageID", id).Msg("Failed to edit message")
		return nil, err
	}

	s.events.BroadcastToChat(&websocket.Event{
		Type:      websocket.EventMessageUpdated,
		ChatID:    chatID,
		UserID:    actor,
		Room:      s.authz.EventRoom(chatID, actor),
		MessageID: id,
		Message:   updated,
	})
	return updated, nil
}

// Delete removes a message. Deleting an absent message succeeds; replies
// that point at it stay and render a tombstone.
func (s *messageServiceImpl) Delete(ctx context.Context, chatID, id, actor string) error {
	chat, ephemeral, err := s.authz.ResolveChat(ctx, chatID, actor)
	if err != nil {
		return err
	}
	if ephemeral {
		return nil
	}
	if !chat.HasMember(actor) {
		return apperrors.ErrNotChatMember
	}

	existing, err := s.store.GetMessage(ctx, chatID, id)
	if errors.Is(err, apperrors.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Sender != actor {
		isAdmin, err := s.authz.IsAdmin(ctx, actor)
		if err != nil {
			return err
		}
		if !isAdmin {
			return apperrors.NewForbiddenError("only the sender can delete a message")
		}
	}

	if err := s.store.DeleteMessage(ctx, chatID, id); err != nil {
		s.logger.Error().Err(err).Str("chatID", chatID).Str("messageID", id).Msg("Failed to delete message")
		return err
	}

	s.events.BroadcastToChat(&websocket.Event{
		Type:      websocket.EventMessageDeleted,
		ChatID:    chatID,
		UserID:    actor,
		Room:      s.authz.EventRoom(chatID, actor),
		MessageID: id,
	})
	return nil
}

// SetPinned pins or unpins a message; the chat has a single pin slot
func (s *messageServiceImpl) SetPinned(ctx context.Context, chatID, id, actor string, pinned bool) (*models.Chat, error) {
	if _, err := s.authz.ValidateChatMember(ctx, chatID, actor); err != nil {
		return nil, err
	}
	if pinned {
		if _, err := s.store.GetMessage(ctx, chatID, id); err != nil {
			return nil, err
		}
	}

	chat, err := s.store.SetPinned(ctx, chatID, id, pinned)
	if err != nil {
		s.logger.Error().Err(err).Str("chatID", chatID).Str("messageID", id).Msg("Failed to update pin")
		return nil, err
	}

	s.events.BroadcastToChat(&websocket.Event{
		Type:      websocket.EventPinChanged,
		ChatID:    chatID,
		UserID:    actor,
		Room:      s.authz.EventRoom(chatID, actor),
		MessageID: chat.PinnedMessageID,
		Pinned:    chat.PinnedMessageID != "",
	})
	return chat, nil
}

// MarkRead adds userID to the readers of a message
func (s *messageServiceImpl) MarkRead(ctx context.Context, chatID, id, userID string) (*models.Message, error) {
	if _, err := s.authz.ValidateChatMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	message, err := s.store.MarkRead(ctx, chatID, id, userID)
	if err != nil {
		return nil, err
	}

	s.events.BroadcastToChat(&websocket.Event{
		Type:      websocket.EventMessageRead,
		ChatID:    chatID,
		UserID:    userID,
		Room:      s.authz.EventRoom(chatID, userID),
		MessageID: id,
	})
	return message, nil
}

// RecordRead is MarkRead for callers that only need the outcome
func (s *messageServiceImpl) RecordRead(ctx context.Context, chatID, id, userID string) error {
	_, err := s.MarkRead(ctx, chatID, id, userID)
	return err
}

// Search matches query against message text, case-insensitively
func (s *messageServiceImpl) Search(ctx context.Context, chatID, actor, query string) ([]chatview.Match, error) {
	messages, err := s.List(ctx, chatID, actor)
	if err != nil {
		return nil, err
	}
	return chatview.Search(messages, query), nil
}
