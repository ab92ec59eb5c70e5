// Package docstore is a document-style persistence backend: named
// collections held in memory and written to a single JSON file after every
// successful mutation.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

// document is the on-disk layout
type document struct {
	Users    []*models.User               `json:"users"`
	Chats    []*models.Chat               `json:"chats"`
	Messages map[string][]*models.Message `json:"messages"`
}

func newDocument() *document {
	return &document{
		Users:    []*models.User{},
		Chats:    []*models.Chat{},
		Messages: map[string][]*models.Message{},
	}
}

func (d *document) clone() *document {
	c := &document{
		Users:    make([]*models.User, len(d.Users)),
		Chats:    make([]*models.Chat, len(d.Chats)),
		Messages: make(map[string][]*models.Message, len(d.Messages)),
	}
	for i, u := range d.Users {
		cu := *u
		c.Users[i] = &cu
	}
	for i, ch := range d.Chats {
		c.Chats[i] = cloneChat(ch)
	}
	for chatID, messages := range d.Messages {
		cm := make([]*models.Message, len(messages))
		for i, m := range messages {
			cm[i] = m.Clone()
		}
		c.Messages[chatID] = cm
	}
	return c
}

func cloneChat(ch *models.Chat) *models.Chat {
	c := *ch
	c.Members = slices.Clone(ch.Members)
	return &c
}

func (d *document) chat(id string) *models.Chat {
	for _, c := range d.Chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (d *document) message(chatID, id string) *models.Message {
	for _, m := range d.Messages[chatID] {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Store is safe for concurrent use. Readers share the current document;
// writers build the next one on a copy and swap it in once it is on disk, so
// a failed write leaves the previous state untouched.
type Store struct {
	mu     sync.RWMutex
	path   string
	doc    *document
	logger zerolog.Logger
}

// Open loads path, or starts empty when the file does not exist. An empty
// path keeps everything in memory.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		doc:    newDocument(),
		logger: logger.With().Str("component", "docstore").Logger(),
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info().Str("path", path).Msg("Document store file not found, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document store: %w", err)
	}

	doc := newDocument()
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to parse document store %s: %w", path, err)
		}
	}
	if doc.Messages == nil {
		doc.Messages = map[string][]*models.Message{}
	}
	s.doc = doc
	s.logger.Info().Str("path", path).Int("chats", len(doc.Chats)).Int("users", len(doc.Users)).Msg("Document store loaded")
	return s, nil
}

// Close flushes nothing; every write is already on disk
func (s *Store) Close() error {
	return nil
}

func (s *Store) read(fn func(d *document) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.doc)
}

func (s *Store) update(ctx context.Context, fn func(d *document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

// persist writes to a temp file in the same directory and renames it over
// the snapshot so readers of the file never see a partial document
func (s *Store) persist(doc *document) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create document store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".db-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write document store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close document store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace document store: %w", err)
	}
	return nil
}

// --- chats ---

// CreateChat adds a chat collection entry
func (s *Store) CreateChat(ctx context.Context, chat *models.Chat) error {
	return s.update(ctx, func(d *document) error {
		if d.chat(chat.ID) != nil {
			return apperrors.NewConflictError("chat already exists")
		}
		d.Chats = append(d.Chats, cloneChat(chat))
		d.Messages[chat.ID] = []*models.Message{}
		return nil
	})
}

// GetChat returns a copy of the chat
func (s *Store) GetChat(_ context.Context, id string) (*models.Chat, error) {
	var out *models.Chat
	err := s.read(func(d *document) error {
		c := d.chat(id)
		if c == nil {
			return apperrors.ErrChatNotFound
		}
		out = cloneChat(c)
		return nil
	})
	return out, err
}

// ListChatsByMember returns the chats userID belongs to, newest first
func (s *Store) ListChatsByMember(_ context.Context, userID string) ([]*models.Chat, error) {
	out := make([]*models.Chat, 0)
	err := s.read(func(d *document) error {
		for _, c := range d.Chats {
			if c.HasMember(userID) {
				out = append(out, cloneChat(c))
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b *models.Chat) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, err
}

// FindDirectChat returns the chat whose members are exactly a and b
func (s *Store) FindDirectChat(_ context.Context, a, b string) (*models.Chat, error) {
	var out *models.Chat
	err := s.read(func(d *document) error {
		for _, c := range d.Chats {
			if len(c.Members) == 2 && c.HasMember(a) && c.HasMember(b) {
				out = cloneChat(c)
				return nil
			}
		}
		return apperrors.ErrChatNotFound
	})
	return out, err
}

// DeleteChat removes the chat and its messages
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	return s.update(ctx, func(d *document) error {
		idx := slices.IndexFunc(d.Chats, func(c *models.Chat) bool { return c.ID == id })
		if idx < 0 {
			return apperrors.ErrChatNotFound
		}
		d.Chats = slices.Delete(d.Chats, idx, idx+1)
		delete(d.Messages, id)
		return nil
	})
}

// RemoveMember drops userID from every chat. Chats left without members are
// deleted with their messages.
func (s *Store) RemoveMember(ctx context.Context, userID string) error {
	return s.update(ctx, func(d *document) error {
		for _, c := range d.Chats {
			c.Members = slices.DeleteFunc(c.Members, func(m string) bool { return m == userID })
			if len(c.Members) == 0 {
				delete(d.Messages, c.ID)
			}
		}
		d.Chats = slices.DeleteFunc(d.Chats, func(c *models.Chat) bool { return len(c.Members) == 0 })
		return nil
	})
}

// SetPinned updates the single pin slot
func (s *Store) SetPinned(ctx context.Context, chatID, messageID string, pinned bool) (*models.Chat, error) {
	var out *models.Chat
	err := s.update(ctx, func(d *document) error {
		c := d.chat(chatID)
		if c == nil {
			return apperrors.ErrChatNotFound
		}
		if pinned {
			c.PinnedMessageID = messageID
		} else if c.PinnedMessageID == messageID {
			c.PinnedMessageID = ""
		}
		out = cloneChat(c)
		return nil
	})
	return out, err
}

// --- messages ---

func present(c *models.Chat, m *models.Message) *models.Message {
	out := m.Clone()
	out.IsPinned = c != nil && c.PinnedMessageID != "" && c.PinnedMessageID == m.ID
	out.Status = models.MessageStatusConfirmed
	return out
}

// AppendMessage pushes a message onto its chat
func (s *Store) AppendMessage(ctx context.Context, message *models.Message) error {
	return s.update(ctx, func(d *document) error {
		if d.chat(message.ChatID) == nil {
			return apperrors.ErrChatNotFound
		}
		if d.message(message.ChatID, message.ID) != nil {
			return apperrors.ErrDuplicateMessage
		}
		stored := message.Clone()
		stored.IsPinned = false
		d.Messages[message.ChatID] = append(d.Messages[message.ChatID], stored)
		return nil
	})
}

// ListMessages returns copies of a chat's messages in insertion order
func (s *Store) ListMessages(_ context.Context, chatID string) ([]*models.Message, error) {
	var out []*models.Message
	err := s.read(func(d *document) error {
		c := d.chat(chatID)
		if c == nil {
			return apperrors.ErrChatNotFound
		}
		messages := d.Messages[chatID]
		out = make([]*models.Message, 0, len(messages))
		for _, m := range messages {
			out = append(out, present(c, m))
		}
		return nil
	})
	return out, err
}

// GetMessage returns a copy of one message
func (s *Store) GetMessage(_ context.Context, chatID, id string) (*models.Message, error) {
	var out *models.Message
	err := s.read(func(d *document) error {
		c := d.chat(chatID)
		if c == nil {
			return apperrors.ErrChatNotFound
		}
		m := d.message(chatID, id)
		if m == nil {
			return apperrors.ErrMessageNotFound
		}
		out = present(c, m)
		return nil
	})
	return out, err
}

func (s *Store) mutateMessage(ctx context.Context, chatID, id string, fn func(m *models.Message)) (*models.Message, error) {
	var out *models.Message
	err := s.update(ctx, func(d *document) error {
		c := d.chat(chatID)
		if c == nil {
			return apperrors.ErrChatNotFound
		}
		m := d.message(chatID, id)
		if m == nil {
			return apperrors.ErrMessageNotFound
		}
		fn(m)
		out = present(c, m)
		return nil
	})
	return out, err
}

// UpdateMessageText replaces the text of a message
func (s *Store) UpdateMessageText(ctx context.Context, chatID, id, text string, editedAt time.Time) (*models.Message, error) {
	return s.mutateMessage(ctx, chatID, id, func(m *models.Message) {
		m.Text = text
		m.EditedAt = &editedAt
	})
}

// IncrementReaction adds one to the emoji counter
func (s *Store) IncrementReaction(ctx context.Context, chatID, id, emoji string) (int, error) {
	m, err := s.mutateMessage(ctx, chatID, id, func(m *models.Message) {
		if m.Reactions == nil {
			m.Reactions = map[string]int{}
		}
		m.Reactions[emoji]++
	})
	if err != nil {
		return 0, err
	}
	return m.Reactions[emoji], nil
}

// MarkRead adds userID to the readers of a message
func (s *Store) MarkRead(ctx context.Context, chatID, id, userID string) (*models.Message, error) {
	return s.mutateMessage(ctx, chatID, id, func(m *models.Message) {
		if !slices.Contains(m.ReadBy, userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	})
}

// DeleteMessage removes a message; absent chats and messages are not errors
func (s *Store) DeleteMessage(ctx context.Context, chatID, id string) error {
	return s.update(ctx, func(d *document) error {
		messages := d.Messages[chatID]
		d.Messages[chatID] = slices.DeleteFunc(messages, func(m *models.Message) bool { return m.ID == id })
		if c := d.chat(chatID); c != nil && c.PinnedMessageID == id {
			c.PinnedMessageID = ""
		}
		return nil
	})
}

// ListFileRefs returns every distinct attachment referenced by a message
func (s *Store) ListFileRefs(_ context.Context) ([]models.FileRef, error) {
	refs := make([]models.FileRef, 0)
	err := s.read(func(d *document) error {
		seen := map[string]struct{}{}
		for _, messages := range d.Messages {
			for _, m := range messages {
				if !m.HasFile() {
					continue
				}
				if _, ok := seen[m.File.StoredName]; ok {
					continue
				}
				seen[m.File.StoredName] = struct{}{}
				refs = append(refs, *m.File)
			}
		}
		return nil
	})
	slices.SortFunc(refs, func(a, b models.FileRef) int { return strings.Compare(a.StoredName, b.StoredName) })
	return refs, err
}

// --- users ---

// CreateUser adds a user; emails are unique case-insensitively
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.update(ctx, func(d *document) error {
		for _, u := range d.Users {
			if strings.EqualFold(u.Email, user.Email) {
				return apperrors.ErrEmailAlreadyExists
			}
			if u.ID == user.ID {
				return apperrors.NewConflictError("user id already exists")
			}
		}
		u := *user
		u.Email = strings.ToLower(u.Email)
		d.Users = append(d.Users, &u)
		return nil
	})
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.ID == id })
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Store) findUser(match func(u *models.User) bool) (*models.User, error) {
	var out *models.User
	err := s.read(func(d *document) error {
		for _, u := range d.Users {
			if match(u) {
				cu := *u
				out = &cu
				return nil
			}
		}
		return apperrors.ErrUserNotFound
	})
	return out, err
}

// SearchUsers matches query against name and email, case-insensitively
func (s *Store) SearchUsers(_ context.Context, query, excludeID string, limit int) ([]*models.User, error) {
	needle := strings.ToLower(query)
	out := make([]*models.User, 0)
	err := s.read(func(d *document) error {
		for _, u := range d.Users {
			if u.ID == excludeID {
				continue
			}
			if needle != "" &&
				!strings.Contains(strings.ToLower(u.Name), needle) &&
				!strings.Contains(strings.ToLower(u.Email), needle) {
				continue
			}
			cu := *u
			out = append(out, &cu)
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b *models.User) int { return strings.Compare(a.Name, b.Name) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// DeleteUser removes a user from the directory
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.update(ctx, func(d *document) error {
		idx := slices.IndexFunc(d.Users, func(u *models.User) bool { return u.ID == id })
		if idx < 0 {
			return apperrors.ErrUserNotFound
		}
		d.Users = slices.Delete(d.Users, idx, idx+1)
		return nil
	})
}
