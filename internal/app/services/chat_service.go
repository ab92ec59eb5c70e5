package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/auth"
	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

// ChatService defines the interface for chat operations
type ChatService interface {
	CreateChat(ctx context.Context, actor string, req *dto.CreateChatRequest) (*models.Chat, error)
	GetChat(ctx context.Context, chatID, actor string) (*models.Chat, error)
	ListChats(ctx context.Context, actor, userID string) ([]*models.Chat, error)
	// FindOrCreateDirect returns the two-member chat of actor and peerID,
	// creating it on first use
	FindOrCreateDirect(ctx context.Context, actor, peerID string) (*models.Chat, bool, error)
	DeleteChat(ctx context.Context, chatID, actor string) error
}

type chatServiceImpl struct {
	chats  repositories.ChatRepository
	users  repositories.UserRepository
	authz  *auth.AuthorizationService
	logger zerolog.Logger
}

// NewChatService creates a new ChatService
func NewChatService(
	chats repositories.ChatRepository,
	users repositories.UserRepository,
	authz *auth.AuthorizationService,
	logger zerolog.Logger,
) ChatService {
	return &chatServiceImpl{
		chats:  chats,
		users:  users,
		authz:  authz,
		logger: logger,
	}
}

// CreateChat creates a chat; the creator is always a member
func (s *chatServiceImpl) CreateChat(ctx context.Context, actor string, req *dto.CreateChatRequest) (*models.Chat, error) {
	if len(models.NormalizeMembers(req.Members)) == 0 {
		return nil, apperrors.ErrMembersRequired
	}
	members := models.NormalizeMembers(append([]string{actor}, req.Members...))

	chat := &models.Chat{
		ID:        uuid.NewString(),
		Members:   members,
		Name:      req.Name,
		Avatar:    req.Avatar,
		CreatedAt: time.Now(),
	}
	if err := s.chats.CreateChat(ctx, chat); err != nil {
		s.logger.Error().Err(err).Str("actor", actor).Msg("Failed to create chat")
		return nil, err
	}

	s.logger.Info().Str("chatID", chat.ID).Int("members", len(members)).Msg("Chat created")
	return chat, nil
}

// GetChat returns a chat the actor belongs to
func (s *chatServiceImpl) GetChat(ctx context.Context, chatID, actor string) (*models.Chat, error) {
	return s.authz.ValidateChatMember(ctx, chatID, actor)
}

// ListChats returns the chats of userID. Only admins may list other users' chats.
func (s *chatServiceImpl) ListChats(ctx context.Context, actor, userID string) ([]*models.Chat, error) {
	if userID == "" {
		userID = actor
	}
	if userID != actor {
		if err := s.authz.ValidateAdmin(ctx, actor); err != nil {
			return nil, err
		}
	}
	return s.chats.ListChatsByMember(ctx, userID)
}

// FindOrCreateDirect returns the existing direct chat or creates it
func (s *chatServiceImpl) FindOrCreateDirect(ctx context.Context, actor, peerID string) (*models.Chat, bool, error) {
	if peerID == actor {
		return nil, false, apperrors.NewValidationError("peerId", "cannot start a chat with yourself")
	}

	chat, err := s.chats.FindDirectChat(ctx, actor, peerID)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, apperrors.ErrChatNotFound) {
		return nil, false, err
	}

	peer, err := s.users.GetUserByID(ctx, peerID)
	if err != nil {
		return nil, false, err
	}

	chat = &models.Chat{
		ID:        uuid.NewString(),
		Members:   []string{actor, peerID},
		Name:      peer.Name,
		Avatar:    peer.Avatar,
		CreatedAt: time.Now(),
	}
	if err := s.chats.CreateChat(ctx, chat); err != nil {
		s.logger.Error().Err(err).Str("actor", actor).Str("peerID", peerID).Msg("Failed to create direct chat")
		return nil, false, err
	}
	return chat, true, nil
}

// DeleteChat removes a chat and its messages for every member
func (s *chatServiceImpl) DeleteChat(ctx context.Context, chatID, actor string) error {
	if _, err := s.authz.ValidateChatMember(ctx, chatID, actor); err != nil {
		return err
	}
	if err := s.chats.DeleteChat(ctx, chatID); err != nil {
		s.logger.Error().Err(err).Str("chatID", chatID).Msg("Failed to delete chat")
		return err
	}
	s.logger.Info().Str("chatID", chatID).Str("actor", actor).Msg("Chat deleted")
	return nil
}
