package auth

import (
	"context"
	"errors"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/pkg/apperrors"
	"github.com/yigit/educhat/internal/pkg/logger"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

// AuthorizationService answers who may touch which chat
type AuthorizationService struct {
	chats           repositories.ChatRepository
	users           repositories.UserRepository
	assistantChatID string
	botUserID       string
}

// NewAuthorizationService creates a new AuthorizationService
func NewAuthorizationService(
	chats repositories.ChatRepository,
	users repositories.UserRepository,
	assistantChatID, botUserID string,
) *AuthorizationService {
	return &AuthorizationService{
		chats:           chats,
		users:           users,
		assistantChatID: assistantChatID,
		botUserID:       botUserID,
	}
}

// IsAssistantChatID reports whether id is the reserved assistant chat
func (s *AuthorizationService) IsAssistantChatID(id string) bool {
	return id == s.assistantChatID
}

// ResolveChat loads a chat. The reserved assistant chat may be absent from the
// store; it then resolves to an ephemeral chat between userID and the bot and
// ephemeral is true.
func (s *AuthorizationService) ResolveChat(ctx context.Context, chatID, userID string) (chat *models.Chat, ephemeral bool, err error) {
	chat, err = s.chats.GetChat(ctx, chatID)
	if err == nil {
		return chat, false, nil
	}
	if errors.Is(err, apperrors.ErrChatNotFound) && s.IsAssistantChatID(chatID) {
		return &models.Chat{
			ID:      chatID,
			Members: []string{userID, s.botUserID},
			Name:    models.DefaultBotName,
		}, true, nil
	}
	return nil, false, err
}

// ValidateChatMember resolves a chat and checks userID belongs to it
func (s *AuthorizationService) ValidateChatMember(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, _, err := s.ResolveChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(userID) {
		return nil, apperrors.ErrNotChatMember
	}
	return chat, nil
}

// EventRoom names the hub room events of chatID concerning userID go to. The
// reserved assistant chat is private to each user.
func (s *AuthorizationService) EventRoom(chatID, userID string) string {
	if s.IsAssistantChatID(chatID) {
		return websocket.PrivateRoom(chatID, userID)
	}
	return chatID
}

// SubscriptionRoom checks membership and returns the room a connection of
// userID to chatID joins
func (s *AuthorizationService) SubscriptionRoom(ctx context.Context, chatID, userID string) (string, error) {
	if _, err := s.ValidateChatMember(ctx, chatID, userID); err != nil {
		return "", err
	}
	return s.EventRoom(chatID, userID), nil
}

// IsAdmin checks if the user has the admin role
func (s *AuthorizationService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return false, nil
		}
		logger.Error().Err(err).Str("userID", userID).Msg("Error getting user by ID in IsAdmin")
		return false, err
	}
	return user.IsAdmin(), nil
}

// ValidateAdmin returns ErrPermissionDenied unless userID is an admin
func (s *AuthorizationService) ValidateAdmin(ctx context.Context, userID string) error {
	ok, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewForbiddenError("admin role required")
	}
	return nil
}

// IsAssistantChat reports whether messages in chat are answered by the bot
func (s *AuthorizationService) IsAssistantChat(chat *models.Chat) bool {
	return chat != nil && (s.IsAssistantChatID(chat.ID) || chat.HasMember(s.botUserID))
}

// BotUserID returns the id the assistant posts as
func (s *AuthorizationService) BotUserID() string {
	return s.botUserID
}
