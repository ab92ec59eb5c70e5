package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/auth"
	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/pkg/metrics"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

// ForwardService copies a message into another chat
type ForwardService interface {
	Forward(ctx context.Context, sourceChatID, messageID, targetChatID, initiator string) (*models.Message, error)
}

type forwardServiceImpl struct {
	store  repositories.Store
	authz  *auth.AuthorizationService
	ids    *models.IDGenerator
	events EventBroadcaster
	logger zerolog.Logger
}

// NewForwardService creates a new ForwardService
func NewForwardService(
	store repositories.Store,
	authz *auth.AuthorizationService,
	ids *models.IDGenerator,
	events EventBroadcaster,
	logger zerolog.Logger,
) ForwardService {
	return &forwardServiceImpl{
		store:  store,
		authz:  authz,
		ids:    ids,
		events: orNoop(events),
		logger: logger,
	}
}

// Forward appends a copy of the source message to the target chat. The copy
// shares the attachment binary by name and starts with no reactions, no
// reply target, no readers and no pin.
func (s *forwardServiceImpl) Forward(ctx context.Context, sourceChatID, messageID, targetChatID, initiator string) (*models.Message, error) {
	if _, err := s.authz.ValidateChatMember(ctx, sourceChatID, initiator); err != nil {
		return nil, err
	}
	source, err := s.store.GetMessage(ctx, sourceChatID, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.ValidateChatMember(ctx, targetChatID, initiator); err != nil {
		return nil, err
	}

	id, now := s.ids.Next()
	forwarded := &models.Message{
		ID:        id,
		ChatID:    targetChatID,
		Sender:    initiator,
		Text:      source.Text,
		Type:      source.Type,
		CreatedAt: now,
		Reactions: map[string]int{},
		ReadBy:    []string{},
		Status:    models.MessageStatusConfirmed,
	}
	if source.File != nil {
		ref := *source.File
		forwarded.File = &ref
	}

	if err := s.store.AppendMessage(ctx, forwarded); err != nil {
		s.logger.Error().Err(err).
			Str("sourceChatID", sourceChatID).
			Str("targetChatID", targetChatID).
			Msg("Failed to forward message")
		return nil, err
	}

	metrics.MessagesAppended.WithLabelValues(string(forwarded.Type)).Inc()
	s.events.BroadcastToChat(&websocket.Event{
		Type:      websocket.EventMessageCreated,
		ChatID:    targetChatID,
		UserID:    initiator,
		Room:      s.authz.EventRoom(targetChatID, initiator),
		MessageID: forwarded.ID,
		Message:   forwarded.Clone(),
		Timestamp: now,
	})
	s.logger.Debug().
		Str("sourceChatID", sourceChatID).
		Str("messageID", messageID).
		Str("targetChatID", targetChatID).
		Str("newMessageID", forwarded.ID).
		Msg("Message forwarded")
	return forwarded, nil
}
