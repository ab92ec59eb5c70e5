package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/auth"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/pkg/apperrors"
	"github.com/yigit/educhat/internal/pkg/metrics"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

// maxEmojiBytes bounds a reaction key
const maxEmojiBytes = 32

// ReactionPalette is the set of emoji offered by clients. Other emoji are accepted.
var ReactionPalette = []string{"👍", "😂", "🔥", "❤️", "😮", "😢", "👏", "🎉"}

// ReactionService counts emoji reactions. Counters have no actor identity:
// every call adds one, and nothing decrements.
type ReactionService interface {
	AddReaction(ctx context.Context, chatID, messageID, actor, emoji string) (int, error)
	Palette() []string
}

type reactionServiceImpl struct {
	store  repositories.MessageRepository
	authz  *auth.AuthorizationService
	events EventBroadcaster
	logger zerolog.Logger
}

// NewReactionService creates a new ReactionService
func NewReactionService(
	store repositories.MessageRepository,
	authz *auth.AuthorizationService,
	events EventBroadcaster,
	logger zerolog.Logger,
) ReactionService {
	return &reactionServiceImpl{
		store:  store,
		authz:  authz,
		events: orNoop(events),
		logger: logger,
	}
}

// AddReaction increments the emoji counter of a message and returns the new count
func (s *reactionServiceImpl) AddReaction(ctx context.Context, chatID, messageID, actor, emoji string) (int, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return 0, apperrors.NewValidationError("emoji", "emoji must be 1 to 32 bytes")
	}
	if _, err := s.authz.ValidateChatMember(ctx, chatID, actor); err != nil {
		return 0, err
	}

	count, err := s.store.IncrementReaction(ctx, chatID, messageID, emoji)
	if err != nil {
		s.logger.Error().Err(err).Str("chatID", chatID).Str("messageID", messageID).Msg("Failed to add reaction")
		return 0, err
	}

	metrics.Reactions.Inc()
	s.events.BroadcastToChat(&websocket.Event{
		Type:      websocket.EventReactionAdded,
		ChatID:    chatID,
		UserID:    actor,
		Room:      s.authz.EventRoom(chatID, actor),
		MessageID: messageID,
		Emoji:     emoji,
		Count:     count,
	})
	return count, nil
}

// Palette returns a copy of the suggested emoji
func (s *reactionServiceImpl) Palette() []string {
	return append([]string(nil), ReactionPalette...)
}
