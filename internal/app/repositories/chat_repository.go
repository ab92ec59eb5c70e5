package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PgChatRepository handles database operations for chats
type PgChatRepository struct {
	db *pgxpool.Pool
}

// NewPgChatRepository creates a new PgChatRepository
func NewPgChatRepository(db *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{db: db}
}

// CreateChat inserts the chat and its members in one transaction
func (r *PgChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO chats (id, name, avatar, created_at) VALUES ($1, $2, $3, $4)`,
		chat.ID, chat.Name, chat.Avatar, chat.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating chat: %w", err)
	}

	if len(chat.Members) > 0 {
		insert := psql.Insert("chat_members").Columns("chat_id", "user_id", "position")
		for i, member := range chat.Members {
			insert = insert.Values(chat.ID, member, i)
		}
		sql, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("error building SQL: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("error adding chat members: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat with its members
func (r *PgChatRepository) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	chats, err := r.queryChats(ctx, psql.Select().Where(squirrel.Eq{"c.id": id}))
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, apperrors.ErrChatNotFound
	}
	return chats[0], nil
}

// ListChatsByMember returns every chat userID belongs to, newest first
func (r *PgChatRepository) ListChatsByMember(ctx context.Context, userID string) ([]*models.Chat, error) {
	return r.queryChats(ctx, psql.Select().
		Where("EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = c.id AND m.user_id = ?)", userID))
}

// FindDirectChat returns the chat with exactly the members a and b
func (r *PgChatRepository) FindDirectChat(ctx context.Context, a, b string) (*models.Chat, error) {
	chats, err := r.queryChats(ctx, psql.Select().
		Where(`(SELECT COUNT(*) FROM chat_members m WHERE m.chat_id = c.id) = 2`).
		Where(`EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = c.id AND m.user_id = ?)`, a).
		Where(`EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = c.id AND m.user_id = ?)`, b))
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, apperrors.ErrChatNotFound
	}
	return chats[0], nil
}

// queryChats runs the chat select with extra filters taken from where
func (r *PgChatRepository) queryChats(ctx context.Context, where squirrel.SelectBuilder) ([]*models.Chat, error) {
	query := where.
		Columns(
			"c.id", "c.name", "c.avatar", "COALESCE(c.pinned_message_id, '')", "c.created_at",
			"COALESCE(ARRAY(SELECT m.user_id FROM chat_members m WHERE m.chat_id = c.id ORDER BY m.position), '{}')",
		).
		From("chats c").
		OrderBy("c.created_at DESC")

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	chats := make([]*models.Chat, 0)
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.Name, &chat.Avatar, &chat.PinnedMessageID, &chat.CreatedAt, &chat.Members); err != nil {
			return nil, fmt.Errorf("error scanning chat row: %w", err)
		}
		chats = append(chats, &chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return chats, nil
}

// DeleteChat removes a chat; members and messages cascade
func (r *PgChatRepository) DeleteChat(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting chat: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrChatNotFound
	}
	return nil
}

// RemoveMember drops the user from every chat and deletes the chats nobody
// else belongs to. The outer statement still sees the removed rows, hence
// the user_id filter.
func (r *PgChatRepository) RemoveMember(ctx context.Context, userID string) error {
	query := `
		WITH removed AS (
			DELETE FROM chat_members WHERE user_id = $1 RETURNING chat_id
		)
		DELETE FROM chats c
		WHERE c.id IN (SELECT chat_id FROM removed)
		  AND NOT EXISTS (
			SELECT 1 FROM chat_members m WHERE m.chat_id = c.id AND m.user_id <> $1
		  )`
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("error removing chat member: %w", err)
	}
	return nil
}

// SetPinned updates the single pin slot of a chat
func (r *PgChatRepository) SetPinned(ctx context.Context, chatID, messageID string, pinned bool) (*models.Chat, error) {
	var err error
	if pinned {
		_, err = r.db.Exec(ctx, `UPDATE chats SET pinned_message_id = $2 WHERE id = $1`, chatID, messageID)
	} else {
		_, err = r.db.Exec(ctx,
			`UPDATE chats SET pinned_message_id = NULL WHERE id = $1 AND pinned_message_id = $2`, chatID, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("error updating pin: %w", err)
	}
	return r.GetChat(ctx, chatID)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
