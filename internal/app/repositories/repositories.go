package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yigit/educhat/internal/app/models"
)

// ChatRepository stores chats and their member sets
type ChatRepository interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListChatsByMember(ctx context.Context, userID string) ([]*models.Chat, error)
	// FindDirectChat returns the chat whose members are exactly a and b
	FindDirectChat(ctx context.Context, a, b string) (*models.Chat, error)
	// DeleteChat removes the chat and every message in it
	DeleteChat(ctx context.Context, id string) error
	// RemoveMember drops userID from every chat it belongs to
	RemoveMember(ctx context.Context, userID string) error
	// SetPinned fills the pin slot with messageID when pinned is true; otherwise
	// it clears the slot only if it currently holds messageID
	SetPinned(ctx context.Context, chatID, messageID string, pinned bool) (*models.Chat, error)
}

// MessageRepository stores messages per chat in insertion order
type MessageRepository interface {
	AppendMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, chatID string) ([]*models.Message, error)
	GetMessage(ctx context.Context, chatID, id string) (*models.Message, error)
	UpdateMessageText(ctx context.Context, chatID, id, text string, editedAt time.Time) (*models.Message, error)
	// IncrementReaction adds one to the emoji counter and returns the new count
	IncrementReaction(ctx context.Context, chatID, id, emoji string) (int, error)
	MarkRead(ctx context.Context, chatID, id, userID string) (*models.Message, error)
	// DeleteMessage is idempotent and clears the chat pin if it pointed at id
	DeleteMessage(ctx context.Context, chatID, id string) error
	// ListFileRefs returns every distinct attachment referenced by any message
	ListFileRefs(ctx context.Context) ([]models.FileRef, error)
}

// UserRepository is the user directory
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// SearchUsers matches query against name and email, case-insensitively
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Store is a complete persistence backend
type Store interface {
	ChatRepository
	MessageRepository
	UserRepository
	Close() error
}

// PostgresStore serves every repository from one pgx pool
type PostgresStore struct {
	*PgChatRepository
	*PgMessageRepository
	*PgUserRepository
}

// NewPostgresStore initializes all repositories over db
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		PgChatRepository:    NewPgChatRepository(db),
		PgMessageRepository: NewPgMessageRepository(db),
		PgUserRepository:    NewPgUserRepository(db),
	}
}

// Close is a no-op; the pool is owned and closed by the db package
func (s *PostgresStore) Close() error {
	return nil
}

var _ Store = (*PostgresStore)(nil)
