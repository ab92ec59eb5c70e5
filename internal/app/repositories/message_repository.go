package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/apperrors"
	"github.com/yigit/educhat/internal/pkg/dberrors"
)

// PgMessageRepository handles database operations for messages
type PgMessageRepository struct {
	db *pgxpool.Pool
}

// NewPgMessageRepository creates a new PgMessageRepository
func NewPgMessageRepository(db *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{db: db}
}

// AppendMessage inserts a message at the end of its chat
func (r *PgMessageRepository) AppendMessage(ctx context.Context, message *models.Message) error {
	var storedName, originalName, mimeType *string
	var size *int64
	if message.File != nil {
		storedName = &message.File.StoredName
		originalName = &message.File.OriginalName
		mimeType = &message.File.MimeType
		size = &message.File.Size
	}
	var replyTo *string
	if message.ReplyTo != "" {
		replyTo = &message.ReplyTo
	}

	query := `
		INSERT INTO messages (
			chat_id, id, sender, text, type, stored_name, original_name, size, mime_type, reply_to, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		message.ChatID, message.ID, message.Sender, message.Text, message.Type,
		storedName, originalName, size, mimeType, replyTo, message.CreatedAt,
	)
	if err != nil {
		if dberrors.IsForeignKeyViolation(err) {
			return apperrors.ErrChatNotFound
		}
		if dberrors.IsUniqueViolation(err) {
			return apperrors.ErrDuplicateMessage
		}
		return fmt.Errorf("error creating message: %w", err)
	}
	return nil
}

// ListMessages returns the messages of a chat in insertion order
func (r *PgMessageRepository) ListMessages(ctx context.Context, chatID string) ([]*models.Message, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM chats WHERE id = $1)`, chatID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("error checking chat: %w", err)
	}
	if !exists {
		return nil, apperrors.ErrChatNotFound
	}
	return r.query(ctx, squirrel.Eq{"m.chat_id": chatID})
}

// GetMessage retrieves one message
func (r *PgMessageRepository) GetMessage(ctx context.Context, chatID, id string) (*models.Message, error) {
	messages, err := r.query(ctx, squirrel.Eq{"m.chat_id": chatID, "m.id": id})
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, apperrors.ErrMessageNotFound
	}
	return messages[0], nil
}

func (r *PgMessageRepository) query(ctx context.Context, where squirrel.Eq) ([]*models.Message, error) {
	sql, args, err := psql.Select(
		"m.chat_id", "m.id", "m.sender", "m.text", "m.type",
		"m.stored_name", "m.original_name", "m.size", "m.mime_type",
		"COALESCE(m.reply_to, '')", "m.created_at", "m.edited_at",
		"COALESCE(c.pinned_message_id = m.id, false)",
		"COALESCE(ARRAY(SELECT rd.user_id FROM message_reads rd WHERE rd.chat_id = m.chat_id AND rd.message_id = m.id ORDER BY rd.read_at), '{}')",
	).
		From("messages m").
		Join("chats c ON c.id = m.chat_id").
		Where(where).
		OrderBy("m.seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	index := make(map[string]*models.Message)
	for rows.Next() {
		var m models.Message
		var storedName, originalName, mimeType *string
		var size *int64
		if err := rows.Scan(
			&m.ChatID, &m.ID, &m.Sender, &m.Text, &m.Type,
			&storedName, &originalName, &size, &mimeType,
			&m.ReplyTo, &m.CreatedAt, &m.EditedAt, &m.IsPinned, &m.ReadBy,
		); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		if storedName != nil {
			m.File = &models.FileRef{StoredName: *storedName}
			if originalName != nil {
				m.File.OriginalName = *originalName
			}
			if size != nil {
				m.File.Size = *size
			}
			if mimeType != nil {
				m.File.MimeType = *mimeType
			}
		}
		m.Reactions = map[string]int{}
		m.Status = models.MessageStatusConfirmed
		messages = append(messages, &m)
		index[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	if len(messages) == 0 {
		return messages, nil
	}

	reactionWhere := squirrel.Eq{"chat_id": messages[0].ChatID}
	if id, ok := where["m.id"]; ok {
		reactionWhere["message_id"] = id
	}
	sql, args, err = psql.Select("message_id", "emoji", "count").
		From("message_reactions").
		Where(reactionWhere).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}
	reactionRows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error loading reactions: %w", err)
	}
	defer reactionRows.Close()
	for reactionRows.Next() {
		var messageID, emoji string
		var count int
		if err := reactionRows.Scan(&messageID, &emoji, &count); err != nil {
			return nil, fmt.Errorf("error scanning reaction row: %w", err)
		}
		if m, ok := index[messageID]; ok {
			m.Reactions[emoji] = count
		}
	}
	if err := reactionRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reaction rows: %w", err)
	}

	return messages, nil
}

// UpdateMessageText replaces the text of a message
func (r *PgMessageRepository) UpdateMessageText(ctx context.Context, chatID, id, text string, editedAt time.Time) (*models.Message, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE messages SET text = $3, edited_at = $4 WHERE chat_id = $1 AND id = $2`,
		chatID, id, text, editedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error updating message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, apperrors.ErrMessageNotFound
	}
	return r.GetMessage(ctx, chatID, id)
}

// IncrementReaction upserts the emoji counter
func (r *PgMessageRepository) IncrementReaction(ctx context.Context, chatID, id, emoji string) (int, error) {
	query := `
		INSERT INTO message_reactions (chat_id, message_id, emoji, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (chat_id, message_id, emoji)
		DO UPDATE SET count = message_reactions.count + 1
		RETURNING count
	`
	var count int
	if err := r.db.QueryRow(ctx, query, chatID, id, emoji).Scan(&count); err != nil {
		if dberrors.IsForeignKeyViolation(err) {
			return 0, apperrors.ErrMessageNotFound
		}
		return 0, fmt.Errorf("error incrementing reaction: %w", err)
	}
	return count, nil
}

// MarkRead adds userID to the readers of a message
func (r *PgMessageRepository) MarkRead(ctx context.Context, chatID, id, userID string) (*models.Message, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_reads (chat_id, message_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, chatID, id, userID)
	if err != nil {
		if dberrors.IsForeignKeyViolation(err) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, fmt.Errorf("error marking message read: %w", err)
	}
	return r.GetMessage(ctx, chatID, id)
}

// DeleteMessage removes a message and clears the pin that pointed at it
func (r *PgMessageRepository) DeleteMessage(ctx context.Context, chatID, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1 AND id = $2`, chatID, id); err != nil {
		return fmt.Errorf("error deleting message: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE chats SET pinned_message_id = NULL WHERE id = $1 AND pinned_message_id = $2`, chatID, id); err != nil {
		return fmt.Errorf("error clearing pin: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing delete: %w", err)
	}
	return nil
}

// ListFileRefs returns every distinct stored attachment
func (r *PgMessageRepository) ListFileRefs(ctx context.Context) ([]models.FileRef, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (stored_name) stored_name, COALESCE(original_name, ''), COALESCE(size, 0), COALESCE(mime_type, '')
		FROM messages
		WHERE stored_name IS NOT NULL AND stored_name <> ''
		ORDER BY stored_name
	`)
	if err != nil {
		return nil, fmt.Errorf("error listing attachments: %w", err)
	}
	defer rows.Close()

	refs := make([]models.FileRef, 0)
	for rows.Next() {
		var ref models.FileRef
		if err := rows.Scan(&ref.StoredName, &ref.OriginalName, &ref.Size, &ref.MimeType); err != nil {
			return nil, fmt.Errorf("error scanning attachment row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachment rows: %w", err)
	}
	return refs, nil
}
