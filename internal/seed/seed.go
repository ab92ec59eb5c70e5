// Package seed creates the records the chat core expects at startup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

// BotUser describes the directory entry that authors assistant replies
type BotUser struct {
	ID   string
	Name string
}

// CreateDefaultData makes sure the bot user exists. An existing record is
// left untouched.
func CreateDefaultData(ctx context.Context, users repositories.UserRepository, bot BotUser, lgr zerolog.Logger) error {
	if bot.Name == "" {
		bot.Name = models.DefaultBotName
	}

	_, err := users.GetUserByID(ctx, bot.ID)
	if err == nil {
		lgr.Debug().Str("userID", bot.ID).Msg("Bot user already present")
		return nil
	}
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		return err
	}

	err = users.CreateUser(ctx, &models.User{
		ID:        bot.ID,
		Name:      bot.Name,
		Email:     bot.ID + "@bot.local",
		Role:      models.RoleBot,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, apperrors.ErrConflict) {
		lgr.Error().Err(err).Str("userID", bot.ID).Msg("Error creating bot user")
		return err
	}

	lgr.Info().Str("userID", bot.ID).Msg("Bot user created")
	return nil
}
