package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

type DocstoreSuite struct {
	suite.Suite
	ctx   context.Context
	path  string
	store *Store
}

func (s *DocstoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "data", "db.json")
	store, err := Open(s.path, zerolog.Nop())
	s.Require().NoError(err)
	s.store = store

	s.Require().NoError(s.store.CreateChat(s.ctx, &models.Chat{
		ID:        "c1",
		Members:   []string{"alice", "bob"},
		Name:      "Math",
		CreatedAt: time.Now(),
	}))
}

func (s *DocstoreSuite) append(id, text string) *models.Message {
	m := &models.Message{
		ID:        id,
		ChatID:    "c1",
		Sender:    "alice",
		Text:      text,
		Type:      models.MessageTypeText,
		CreatedAt: time.Now(),
		Reactions: map[string]int{},
	}
	s.Require().NoError(s.store.AppendMessage(s.ctx, m))
	return m
}

func (s *DocstoreSuite) TestAppendThenListEndsWithMessage() {
	s.append("1", "first")
	s.append("2", "second")

	list, err := s.store.ListMessages(s.ctx, "c1")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("2", list[1].ID)
	s.Equal(models.MessageStatusConfirmed, list[1].Status)
}

func (s *DocstoreSuite) TestAppendToMissingChat() {
	err := s.store.AppendMessage(s.ctx, &models.Message{ID: "1", ChatID: "nope"})
	s.ErrorIs(err, apperrors.ErrChatNotFound)
	s.ErrorIs(err, apperrors.ErrResourceNotFound)
}

func (s *DocstoreSuite) TestDuplicateIDRejectedWithoutPartialAppend() {
	s.append("1", "first")
	err := s.store.AppendMessage(s.ctx, &models.Message{ID: "1", ChatID: "c1", Text: "dup"})
	s.ErrorIs(err, apperrors.ErrDuplicateMessage)
	s.ErrorIs(err, apperrors.ErrConflict)

	list, err := s.store.ListMessages(s.ctx, "c1")
	s.Require().NoError(err)
	s.Len(list, 1)
	s.Equal("first", list[0].Text)
}

func (s *DocstoreSuite) TestDeleteIsIdempotentAndClearsPin() {
	s.append("1", "first")
	_, err := s.store.SetPinned(s.ctx, "c1", "1", true)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteMessage(s.ctx, "c1", "1"))
	s.Require().NoError(s.store.DeleteMessage(s.ctx, "c1", "1"))
	s.Require().NoError(s.store.DeleteMessage(s.ctx, "missing-chat", "1"))

	chat, err := s.store.GetChat(s.ctx, "c1")
	s.Require().NoError(err)
	s.Empty(chat.PinnedMessageID)
}

func (s *DocstoreSuite) TestPinSingleSlot() {
	s.append("1", "a")
	s.append("2", "b")

	_, err := s.store.SetPinned(s.ctx, "c1", "1", true)
	s.Require().NoError(err)
	chat, err := s.store.SetPinned(s.ctx, "c1", "2", true)
	s.Require().NoError(err)
	s.Equal("2", chat.PinnedMessageID)

	// unpinning a message that does not hold the slot leaves it alone
	chat, err = s.store.SetPinned(s.ctx, "c1", "1", false)
	s.Require().NoError(err)
	s.Equal("2", chat.PinnedMessageID)

	list, err := s.store.ListMessages(s.ctx, "c1")
	s.Require().NoError(err)
	s.False(list[0].IsPinned)
	s.True(list[1].IsPinned)
}

func (s *DocstoreSuite) TestReactionsAndReads() {
	s.append("1", "a")

	for want := 1; want <= 3; want++ {
		got, err := s.store.IncrementReaction(s.ctx, "c1", "1", "🔥")
		s.Require().NoError(err)
		s.Equal(want, got)
	}

	_, err := s.store.MarkRead(s.ctx, "c1", "1", "bob")
	s.Require().NoError(err)
	m, err := s.store.MarkRead(s.ctx, "c1", "1", "bob")
	s.Require().NoError(err)
	s.Equal([]string{"bob"}, m.ReadBy)
	s.Equal(3, m.Reactions["🔥"])

	_, err = s.store.IncrementReaction(s.ctx, "c1", "404", "🔥")
	s.ErrorIs(err, apperrors.ErrMessageNotFound)
}

func (s *DocstoreSuite) TestReturnedMessagesAreCopies() {
	s.append("1", "a")

	m, err := s.store.GetMessage(s.ctx, "c1", "1")
	s.Require().NoError(err)
	m.Text = "mutated"
	m.Reactions["x"] = 9

	again, err := s.store.GetMessage(s.ctx, "c1", "1")
	s.Require().NoError(err)
	s.Equal("a", again.Text)
	s.NotContains(again.Reactions, "x")
}

func (s *DocstoreSuite) TestSnapshotReloads() {
	s.append("1", "persisted")
	s.Require().NoError(s.store.CreateUser(s.ctx, &models.User{ID: "u1", Name: "Alice", Email: "Alice@School.kz"}))

	reopened, err := Open(s.path, zerolog.Nop())
	s.Require().NoError(err)

	list, err := reopened.ListMessages(s.ctx, "c1")
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("persisted", list[0].Text)

	u, err := reopened.GetUserByEmail(s.ctx, "alice@school.kz")
	s.Require().NoError(err)
	s.Equal("u1", u.ID)
}

func (s *DocstoreSuite) TestDeleteChatCascades() {
	s.append("1", "a")
	s.Require().NoError(s.store.DeleteChat(s.ctx, "c1"))

	_, err := s.store.ListMessages(s.ctx, "c1")
	s.ErrorIs(err, apperrors.ErrChatNotFound)
	s.ErrorIs(s.store.DeleteChat(s.ctx, "c1"), apperrors.ErrChatNotFound)
}

func (s *DocstoreSuite) TestUsers() {
	s.Require().NoError(s.store.CreateUser(s.ctx, &models.User{ID: "u1", Name: "Айгерим", Email: "a@x.kz"}))
	s.Require().NoError(s.store.CreateUser(s.ctx, &models.User{ID: "u2", Name: "Бекзат", Email: "b@x.kz"}))

	s.ErrorIs(s.store.CreateUser(s.ctx, &models.User{ID: "u3", Email: "A@X.KZ"}), apperrors.ErrEmailAlreadyExists)

	found, err := s.store.SearchUsers(s.ctx, "x.kz", "u1", 10)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("u2", found[0].ID)

	s.Require().NoError(s.store.RemoveMember(s.ctx, "bob"))
	chat, err := s.store.GetChat(s.ctx, "c1")
	s.Require().NoError(err)
	s.Equal([]string{"alice"}, chat.Members)

	// the last member leaving removes the chat
	s.Require().NoError(s.store.RemoveMember(s.ctx, "alice"))
	_, err = s.store.GetChat(s.ctx, "c1")
	s.ErrorIs(err, apperrors.ErrChatNotFound)
	_, err = s.store.ListMessages(s.ctx, "c1")
	s.ErrorIs(err, apperrors.ErrChatNotFound)
}

func (s *DocstoreSuite) TestFindDirectChat() {
	chat, err := s.store.FindDirectChat(s.ctx, "bob", "alice")
	s.Require().NoError(err)
	s.Equal("c1", chat.ID)

	_, err = s.store.FindDirectChat(s.ctx, "alice", "carol")
	s.ErrorIs(err, apperrors.ErrChatNotFound)
}

func TestDocstoreSuite(t *testing.T) {
	suite.Run(t, new(DocstoreSuite))
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.CreateChat(ctx, &models.Chat{ID: "c1", Members: []string{"a"}}))

	// a directory in place of the snapshot makes the rename fail
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o644))

	err = store.AppendMessage(ctx, &models.Message{ID: "1", ChatID: "c1", Text: "lost"})
	require.Error(t, err)

	list, err := store.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "absent.json"), zerolog.Nop())
	require.NoError(t, err)

	chats, err := store.ListChatsByMember(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Empty(t, chats)
}
