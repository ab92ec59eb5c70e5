package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/yigit/educhat/internal/app/auth"
	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/app/repositories/docstore"
	"github.com/yigit/educhat/internal/app/threads"
	"github.com/yigit/educhat/internal/pkg/apperrors"
	pkgauth "github.com/yigit/educhat/internal/pkg/auth"
	"github.com/yigit/educhat/internal/pkg/filestorage"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []*websocket.Event
}

func (r *recordingBroadcaster) BroadcastToChat(event *websocket.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBroadcaster) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type recordingAssistant struct {
	mu        sync.Mutex
	submitted []*models.Message
}

func (r *recordingAssistant) Submit(_ string, m *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, m)
}

func (r *recordingAssistant) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted)
}

type ServicesSuite struct {
	suite.Suite
	ctx       context.Context
	store     *docstore.Store
	authz     *auth.AuthorizationService
	events    *recordingBroadcaster
	assistant *recordingAssistant
	messages  MessageService
	chats     ChatService
	reactions ReactionService
	forwards  ForwardService
	threads   ThreadService
	storage   *filestorage.LocalStorage
	uploads   AttachmentService
}

func (s *ServicesSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := docstore.Open("", zerolog.Nop())
	s.Require().NoError(err)
	s.store = store

	for _, u := range []*models.User{
		{ID: "alice", Name: "Alice", Email: "alice@school.kz", Role: models.RoleStudent},
		{ID: "bob", Name: "Bob", Email: "bob@school.kz", Role: models.RoleTeacher},
		{ID: "carol", Name: "Carol", Email: "carol@school.kz", Role: models.RoleStudent},
		{ID: "root", Name: "Root", Email: "root@school.kz", Role: models.RoleAdmin},
		{ID: models.DefaultBotUserID, Name: models.DefaultBotName, Role: models.RoleBot},
	} {
		s.Require().NoError(store.CreateUser(s.ctx, u))
	}
	s.Require().NoError(store.CreateChat(s.ctx, &models.Chat{ID: "c1", Members: []string{"alice", "bob"}}))
	s.Require().NoError(store.CreateChat(s.ctx, &models.Chat{ID: "c2", Members: []string{"alice", "carol"}}))

	logger := zerolog.Nop()
	ids := models.NewIDGenerator()
	s.authz = auth.NewAuthorizationService(store, store, models.DefaultAssistantChatID, models.DefaultBotUserID)
	s.events = &recordingBroadcaster{}
	s.assistant = &recordingAssistant{}
	s.messages = NewMessageService(store, s.authz, ids, s.events, logger)
	s.messages.SetAssistant(s.assistant)
	s.chats = NewChatService(store, store, s.authz, logger)
	s.reactions = NewReactionService(store, s.authz, s.events, logger)
	s.forwards = NewForwardService(store, s.authz, ids, s.events, logger)
	s.threads = NewThreadService(s.messages)
	s.storage = filestorage.NewLocalStorage(s.T().TempDir(), "http://localhost:4000")
	s.uploads = NewAttachmentService(s.storage, store, logger)
}

func (s *ServicesSuite) send(chatID, sender, text string) *models.Message {
	m, err := s.messages.Append(s.ctx, chatID, models.MessageDraft{Sender: sender, Text: text})
	s.Require().NoError(err)
	return m
}

func TestServicesSuite(t *testing.T) {
	suite.Run(t, new(ServicesSuite))
}

func (s *ServicesSuite) TestAppendThenListEndsWithMessage() {
	s.send("c1", "alice", "first")
	second := s.send("c1", "bob", "second")

	list, err := s.messages.List(s.ctx, "c1", "alice")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(second.ID, list[len(list)-1].ID)
	s.Equal(models.MessageTypeText, list[1].Type)
	s.Less(list[0].ID, list[1].ID)
	s.Equal([]string{websocket.EventMessageCreated, websocket.EventMessageCreated}, s.events.types())
}

func (s *ServicesSuite) TestAppendUnknownChat() {
	_, err := s.messages.Append(s.ctx, "nope", models.MessageDraft{Sender: "alice", Text: "hi"})
	s.ErrorIs(err, apperrors.ErrChatNotFound)
	s.ErrorIs(err, apperrors.ErrResourceNotFound)
}

func (s *ServicesSuite) TestAppendRequiresTextOrFile() {
	_, err := s.messages.Append(s.ctx, "c1", models.MessageDraft{Sender: "alice", Text: "   "})
	s.ErrorIs(err, apperrors.ErrValidationFailed)
}

func (s *ServicesSuite) TestAppendByNonMember() {
	_, err := s.messages.Append(s.ctx, "c1", models.MessageDraft{Sender: "carol", Text: "hi"})
	s.ErrorIs(err, apperrors.ErrNotChatMember)
}

func (s *ServicesSuite) TestAssistantChatAbsentIsEphemeral() {
	m, err := s.messages.Append(s.ctx, models.DefaultAssistantChatID, models.MessageDraft{Sender: "alice", Text: "Погода в Алматы"})
	s.Require().NoError(err)
	s.Equal(models.DefaultAssistantChatID, m.ChatID)
	s.Equal(1, s.assistant.count())

	list, err := s.messages.List(s.ctx, models.DefaultAssistantChatID, "alice")
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *ServicesSuite) TestAssistantChatEventsArePrivate() {
	_, err := s.messages.Append(s.ctx, models.DefaultAssistantChatID, models.MessageDraft{Sender: "alice", Text: "мой пароль 1234"})
	s.Require().NoError(err)
	_, err = s.messages.Append(s.ctx, models.DefaultAssistantChatID, models.MessageDraft{
		Sender:   models.DefaultBotUserID,
		Text:     "🤖 ok",
		Type:     models.MessageTypeBot,
		Audience: "alice",
	})
	s.Require().NoError(err)

	s.Require().Len(s.events.events, 2)
	for _, e := range s.events.events {
		s.Equal(models.DefaultAssistantChatID, e.ChatID)
		s.Equal(websocket.PrivateRoom(models.DefaultAssistantChatID, "alice"), e.Room)
	}

	aliceRoom, err := s.authz.SubscriptionRoom(s.ctx, models.DefaultAssistantChatID, "alice")
	s.Require().NoError(err)
	bobRoom, err := s.authz.SubscriptionRoom(s.ctx, models.DefaultAssistantChatID, "bob")
	s.Require().NoError(err)
	s.NotEqual(aliceRoom, bobRoom)
	s.Equal(websocket.PrivateRoom(models.DefaultAssistantChatID, "alice"), aliceRoom)

	room, err := s.authz.SubscriptionRoom(s.ctx, "c1", "bob")
	s.Require().NoError(err)
	s.Equal("c1", room)
	_, err = s.authz.SubscriptionRoom(s.ctx, "c1", "carol")
	s.ErrorIs(err, apperrors.ErrNotChatMember)
}

func (s *ServicesSuite) TestAssistantIgnoresBotAndNonText() {
	s.Require().NoError(s.store.CreateChat(s.ctx, &models.Chat{
		ID:      models.DefaultAssistantChatID,
		Members: []string{"alice", models.DefaultBotUserID},
	}))

	s.send(models.DefaultAssistantChatID, models.DefaultBotUserID, "🤖 hello")
	_, err := s.messages.Append(s.ctx, models.DefaultAssistantChatID, models.MessageDraft{
		Sender: "alice",
		Type:   models.MessageTypeFile,
		File:   &models.FileRef{StoredName: "1_a.txt", OriginalName: "a.txt"},
	})
	s.Require().NoError(err)
	s.Equal(0, s.assistant.count())

	s.send(models.DefaultAssistantChatID, "alice", "Курс доллара")
	s.Equal(1, s.assistant.count())
}

func (s *ServicesSuite) TestOrdinaryChatDoesNotTriggerAssistant() {
	s.send("c1", "alice", "Погода")
	s.Equal(0, s.assistant.count())
}

func (s *ServicesSuite) TestReplyToMissingMessage() {
	_, err := s.messages.Append(s.ctx, "c1", models.MessageDraft{Sender: "alice", Text: "re", ReplyTo: "42"})
	s.ErrorIs(err, apperrors.ErrMessageNotFound)
}

func (s *ServicesSuite) TestThreadTombstoneAfterDelete() {
	parent := s.send("c1", "alice", "question")
	first, err := s.messages.Append(s.ctx, "c1", models.MessageDraft{Sender: "bob", Text: "a1", ReplyTo: parent.ID})
	s.Require().NoError(err)
	second, err := s.messages.Append(s.ctx, "c1", models.MessageDraft{Sender: "alice", Text: "a2", ReplyTo: parent.ID})
	s.Require().NoError(err)

	entries, label, err := s.threads.OpenThread(s.ctx, "c1", parent.ID, "bob")
	s.Require().NoError(err)
	s.Equal(threads.ReplyPrefix+"question", label)
	var ids []string
	for e := range entries {
		ids = append(ids, e.Message.ID)
	}
	s.Equal([]string{first.ID, second.ID}, ids)

	s.Require().NoError(s.messages.Delete(s.ctx, "c1", parent.ID, "alice"))
	s.Require().NoError(s.messages.Delete(s.ctx, "c1", parent.ID, "alice"))

	entries, label, err = s.threads.OpenThread(s.ctx, "c1", parent.ID, "bob")
	s.Require().NoError(err)
	s.Equal(threads.Tombstone, label)
	count := 0
	for e := range entries {
		s.Equal(threads.Tombstone, e.ParentLabel)
		count++
	}
	s.Equal(2, count)
}

func (s *ServicesSuite) TestEditOnlyBySender() {
	m := s.send("c1", "alice", "draft")

	_, err := s.messages.Edit(s.ctx, "c1", m.ID, "bob", models.MessagePatch{Text: "hijack"})
	s.ErrorIs(err, apperrors.ErrPermissionDenied)

	edited, err := s.messages.Edit(s.ctx, "c1", m.ID, "alice", models.MessagePatch{Text: "final"})
	s.Require().NoError(err)
	s.Equal("final", edited.Text)
	s.NotNil(edited.EditedAt)
}

func (s *ServicesSuite) TestDeleteByAdmin() {
	s.Require().NoError(s.store.CreateChat(s.ctx, &models.Chat{ID: "c3", Members: []string{"alice", "root"}}))
	m := s.send("c3", "alice", "spam")

	s.Require().NoError(s.messages.Delete(s.ctx, "c3", m.ID, "root"))
	_, err := s.messages.Get(s.ctx, "c3", m.ID, "alice")
	s.ErrorIs(err, apperrors.ErrMessageNotFound)
}

func (s *ServicesSuite) TestReactionsAreMonotonic() {
	m := s.send("c1", "alice", "nice")

	var counts []int
	for _, actor := range []string{"alice", "bob", "alice"} {
		n, err := s.reactions.AddReaction(s.ctx, "c1", m.ID, actor, "🔥")
		s.Require().NoError(err)
		counts = append(counts, n)
	}
	s.Equal([]int{1, 2, 3}, counts)

	got, err := s.messages.Get(s.ctx, "c1", m.ID, "bob")
	s.Require().NoError(err)
	s.Equal(3, got.Reactions["🔥"])

	_, err = s.reactions.AddReaction(s.ctx, "c1", m.ID, "alice", "")
	s.ErrorIs(err, apperrors.ErrValidationFailed)
	_, err = s.reactions.AddReaction(s.ctx, "c1", "404", "alice", "👍")
	s.ErrorIs(err, apperrors.ErrMessageNotFound)
}

func (s *ServicesSuite) TestReactionOffPaletteAccepted() {
	m := s.send("c1", "alice", "x")
	s.NotContains(s.reactions.Palette(), "🦀")
	n, err := s.reactions.AddReaction(s.ctx, "c1", m.ID, "bob", "🦀")
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *ServicesSuite) TestForwardSharesFileAndDropsState() {
	ref, err := s.uploads.Upload(s.ctx, strings.NewReader("%PDF-1.4 body"), "report.pdf", "application/pdf")
	s.Require().NoError(err)

	parent := s.send("c1", "alice", "see attached")
	source, err := s.messages.Append(s.ctx, "c1", models.MessageDraft{Sender: "alice", File: &ref, ReplyTo: parent.ID})
	s.Require().NoError(err)
	_, err = s.reactions.AddReaction(s.ctx, "c1", source.ID, "bob", "👍")
	s.Require().NoError(err)
	_, err = s.messages.SetPinned(s.ctx, "c1", source.ID, "bob", true)
	s.Require().NoError(err)

	copied, err := s.forwards.Forward(s.ctx, "c1", source.ID, "c2", "alice")
	s.Require().NoError(err)
	s.Equal("c2", copied.ChatID)
	s.Equal("alice", copied.Sender)
	s.Equal(models.MessageTypeFile, copied.Type)
	s.Require().NotNil(copied.File)
	s.Equal(ref.StoredName, copied.File.StoredName)
	s.Empty(copied.Reactions)
	s.Empty(copied.ReplyTo)
	s.False(copied.IsPinned)

	original, err := s.messages.Get(s.ctx, "c1", source.ID, "alice")
	s.Require().NoError(err)
	s.Equal(1, original.Reactions["👍"])
	s.True(original.IsPinned)
}

func (s *ServicesSuite) TestForwardRequiresTargetMembership() {
	m := s.send("c1", "bob", "secret")
	_, err := s.forwards.Forward(s.ctx, "c1", m.ID, "c2", "bob")
	s.ErrorIs(err, apperrors.ErrNotChatMember)
}

func (s *ServicesSuite) TestPinIsIdempotent() {
	m := s.send("c1", "alice", "rules")

	for range 2 {
		chat, err := s.messages.SetPinned(s.ctx, "c1", m.ID, "bob", true)
		s.Require().NoError(err)
		s.Equal(m.ID, chat.PinnedMessageID)
	}

	other := s.send("c1", "bob", "other")
	chat, err := s.messages.SetPinned(s.ctx, "c1", other.ID, "alice", false)
	s.Require().NoError(err)
	s.Equal(m.ID, chat.PinnedMessageID)

	chat, err = s.messages.SetPinned(s.ctx, "c1", m.ID, "alice", false)
	s.Require().NoError(err)
	s.Empty(chat.PinnedMessageID)
}

func (s *ServicesSuite) TestMarkReadBroadcasts() {
	m := s.send("c1", "alice", "hello")
	s.Require().NoError(s.messages.RecordRead(s.ctx, "c1", m.ID, "bob"))

	got, err := s.messages.Get(s.ctx, "c1", m.ID, "alice")
	s.Require().NoError(err)
	s.Contains(got.ReadBy, "bob")
	s.Contains(s.events.types(), websocket.EventMessageRead)
}

func (s *ServicesSuite) TestSearchHighlights() {
	s.send("c1", "alice", "Домашнее задание на завтра")
	s.send("c1", "bob", "ok")

	matches, err := s.messages.Search(s.ctx, "c1", "alice", "задание")
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	s.Contains(matches[0].Highlighted, "<mark>задание</mark>")
}

func (s *ServicesSuite) TestUploadNaming() {
	payload := bytes.Repeat([]byte("a"), 500000)
	ref, err := s.uploads.Upload(s.ctx, bytes.NewReader(payload), "report.pdf", "application/pdf")
	s.Require().NoError(err)

	s.Regexp(regexp.MustCompile(`^\d+_report\.pdf$`), ref.StoredName)
	s.Equal("report.pdf", ref.OriginalName)
	s.Equal(int64(500000), ref.Size)
	s.Equal("application/pdf", ref.MimeType)

	url, err := s.uploads.URL(s.ctx, ref.StoredName)
	s.Require().NoError(err)
	s.True(strings.HasSuffix(url, "/uploads/"+ref.StoredName))
}

func (s *ServicesSuite) TestUploadSniffsOctetStream() {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	ref, err := s.uploads.Upload(s.ctx, bytes.NewReader(png), "photo", "application/octet-stream")
	s.Require().NoError(err)
	s.Equal("image/png", ref.MimeType)
}

func (s *ServicesSuite) TestUploadStripsClientDirectories() {
	ref, err := s.uploads.Upload(s.ctx, strings.NewReader("%PDF-1.4"), `C:\Users\aigerim\report.pdf`, "application/pdf")
	s.Require().NoError(err)
	s.Equal("report.pdf", ref.OriginalName)
	s.Regexp(regexp.MustCompile(`^\d+_report\.pdf$`), ref.StoredName)
}

func (s *ServicesSuite) TestDiscardRemovesUpload() {
	ref, err := s.uploads.Upload(s.ctx, strings.NewReader("notes"), "notes.txt", "text/plain")
	s.Require().NoError(err)

	s.Require().NoError(s.uploads.Discard(s.ctx, ref.StoredName))
	exists, err := s.storage.Exists(s.ctx, ref.StoredName)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *ServicesSuite) TestRepairWritesPlaceholders() {
	ref, err := s.uploads.Upload(s.ctx, strings.NewReader("notes"), "notes.txt", "text/plain")
	s.Require().NoError(err)
	_, err = s.messages.Append(s.ctx, "c1", models.MessageDraft{Sender: "alice", File: &ref})
	s.Require().NoError(err)
	s.Require().NoError(s.storage.Delete(s.ctx, ref.StoredName))

	report, err := s.uploads.RepairMissing(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Checked)
	s.Equal([]string{ref.StoredName}, report.Repaired)
	s.Empty(report.Failed)

	data, err := os.ReadFile(filepath.Join(s.storage.Dir(), ref.StoredName))
	s.Require().NoError(err)
	s.Equal("File placeholder for notes.txt", string(data))

	report, err = s.uploads.RepairMissing(s.ctx)
	s.Require().NoError(err)
	s.Empty(report.Repaired)
}

func (s *ServicesSuite) TestCreateChatAddsCreator() {
	chat, err := s.chats.CreateChat(s.ctx, "alice", &dto.CreateChatRequest{Members: []string{"bob", "carol", "bob"}, Name: "Project"})
	s.Require().NoError(err)
	s.Equal([]string{"alice", "bob", "carol"}, chat.Members)

	solo, err := s.chats.CreateChat(s.ctx, "alice", &dto.CreateChatRequest{Members: []string{"alice"}})
	s.Require().NoError(err)
	s.Equal([]string{"alice"}, solo.Members)

	_, err = s.chats.CreateChat(s.ctx, "alice", &dto.CreateChatRequest{Members: []string{"", ""}})
	s.ErrorIs(err, apperrors.ErrMembersRequired)
}

func (s *ServicesSuite) TestDirectChatFoundOnce() {
	chat, created, err := s.chats.FindOrCreateDirect(s.ctx, "bob", "carol")
	s.Require().NoError(err)
	s.True(created)

	again, created, err := s.chats.FindOrCreateDirect(s.ctx, "carol", "bob")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(chat.ID, again.ID)
}

func (s *ServicesSuite) TestListChatsOfOthersNeedsAdmin() {
	_, err := s.chats.ListChats(s.ctx, "bob", "alice")
	s.ErrorIs(err, apperrors.ErrPermissionDenied)

	chats, err := s.chats.ListChats(s.ctx, "root", "alice")
	s.Require().NoError(err)
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	slices.Sort(ids)
	s.Equal([]string{"c1", "c2"}, ids)
}

func TestAuthServiceRegisterLogin(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.Open("", zerolog.Nop())
	require.NoError(t, err)
	authz := auth.NewAuthorizationService(store, store, models.DefaultAssistantChatID, models.DefaultBotUserID)
	jwt := pkgauth.NewJWTService(pkgauth.JWTConfig{SecretKey: "test", AccessTokenExp: time.Hour, TokenIssuer: "test"})
	svc := NewAuthService(store, store, authz, jwt, zerolog.Nop())

	resp, err := svc.Register(ctx, &dto.RegisterRequest{Name: "Dana", Email: "Dana@School.kz", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "dana@school.kz", resp.User.Email)
	assert.Equal(t, "Bearer", resp.Token.TokenType)

	_, err = svc.Register(ctx, &dto.RegisterRequest{Name: "Dana", Email: "dana@school.kz", Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrEmailAlreadyExists)

	_, err = svc.Login(ctx, &dto.LoginRequest{Email: "dana@school.kz", Password: "wrong"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	login, err := svc.Login(ctx, &dto.LoginRequest{Email: "dana@school.kz", Password: "secret1"})
	require.NoError(t, err)
	claims, err := jwt.ValidateToken(login.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
}
