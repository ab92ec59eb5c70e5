package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/auth"
	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/pkg/apperrors"
	pkgauth "github.com/yigit/educhat/internal/pkg/auth"
)

// AuthService handles authentication and the user directory
type AuthService struct {
	users  repositories.UserRepository
	chats  repositories.ChatRepository
	authz  *auth.AuthorizationService
	jwt    *pkgauth.JWTService
	logger zerolog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users repositories.UserRepository,
	chats repositories.ChatRepository,
	authz *auth.AuthorizationService,
	jwt *pkgauth.JWTService,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		chats:  chats,
		authz:  authz,
		jwt:    jwt,
		logger: logger,
	}
}

// Register creates a user and signs them in
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}

	hash, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, apperrors.ErrEmailAlreadyExists) {
			s.logger.Error().Err(err).Str("email", user.Email).Msg("Failed to create user")
		}
		return nil, err
	}

	s.logger.Info().Str("userID", user.ID).Msg("User registered")
	return s.issue(user)
}

// Login verifies credentials and returns a fresh token
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" || !pkgauth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*dto.AuthResponse, error) {
	token, expiresIn, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{
		Token: dto.TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
		},
		User: dto.ToUserResponse(user),
	}, nil
}

// GetUser returns a user by id
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// SearchUsers searches the directory, leaving out excludeID
func (s *AuthService) SearchUsers(ctx context.Context, req *dto.UserSearchRequest) ([]*models.User, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	return s.users.SearchUsers(ctx, strings.TrimSpace(req.Query), req.ExcludeID, limit)
}

// DeleteUser removes a user and drops them from every chat. Admin only.
func (s *AuthService) DeleteUser(ctx context.Context, actor, id string) error {
	if err := s.authz.ValidateAdmin(ctx, actor); err != nil {
		return err
	}
	if id == s.authz.BotUserID() {
		return apperrors.NewValidationError("id", "the assistant user cannot be deleted")
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	if err := s.chats.RemoveMember(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("userID", id).Msg("Failed to remove deleted user from chats")
		return err
	}
	s.logger.Info().Str("userID", id).Str("actor", actor).Msg("User deleted")
	return nil
}
