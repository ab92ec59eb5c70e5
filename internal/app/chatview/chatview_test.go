package chatview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

func msg(id, sender, text string) *models.Message {
	return &models.Message{ID: id, ChatID: "c1", Sender: sender, Text: text, Type: models.MessageTypeText}
}

func ids(messages []*models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

// gatedBackend holds every send until the test releases it
type gatedBackend struct {
	mu      sync.Mutex
	stored  []*models.Message
	listErr error
	calls   chan string
	release map[string]chan error
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{calls: make(chan string, 8), release: map[string]chan error{}}
}

func (b *gatedBackend) gate(text string) chan error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.release[text]
	if !ok {
		ch = make(chan error, 1)
		b.release[text] = ch
	}
	return ch
}

func (b *gatedBackend) ListMessages(context.Context, string) ([]*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]*models.Message(nil), b.stored...), nil
}

// SendMessage gates a send by its text, or by the attachment name for a file
func (b *gatedBackend) SendMessage(_ context.Context, chatID string, draft models.MessageDraft) (*models.Message, error) {
	key, typ := draft.Text, models.MessageTypeText
	if draft.File != nil {
		key, typ = draft.File.OriginalName, models.MessageTypeFile
	}
	gate := b.gate(key)
	b.calls <- key
	if err := <-gate; err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m := &models.Message{ID: "srv-" + key, ChatID: chatID, Sender: draft.Sender, Text: draft.Text, Type: typ, File: draft.File}
	b.stored = append(b.stored, m)
	return m, nil
}

func TestSendPlacesMessagesInResolutionOrder(t *testing.T) {
	backend := newGatedBackend()
	c := NewController("c1", "alice", backend, nil)

	report := &models.FileRef{StoredName: "1718000000000_report.pdf", OriginalName: "report.pdf", Size: 500000}
	drafts := []models.MessageDraft{
		{Text: "hello"},
		{Type: models.MessageTypeFile, File: report},
	}

	var wg sync.WaitGroup
	for _, draft := range drafts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Send(context.Background(), draft)
			assert.NoError(t, err)
		}()
		// text is issued before the attachment
		<-backend.calls
	}

	pending := c.Messages()
	require.Len(t, pending, 2)
	assert.Equal(t, "hello", pending[0].Text)
	assert.Equal(t, report, pending[1].File)
	for _, m := range pending {
		assert.Equal(t, models.MessageStatusPending, m.Status)
	}

	// the attachment resolves before the text
	backend.gate("report.pdf") <- nil
	require.Eventually(t, func() bool { return len(confirmed(c.Messages())) == 1 }, time.Second, 5*time.Millisecond)
	backend.gate("hello") <- nil
	wg.Wait()

	got := c.Messages()
	assert.Equal(t, []string{"srv-report.pdf", "srv-hello"}, ids(got))
	assert.Equal(t, "1718000000000_report.pdf", got[0].File.StoredName)
	for _, m := range got {
		assert.Equal(t, models.MessageStatusConfirmed, m.Status)
	}
}

func confirmed(messages []*models.Message) []*models.Message {
	var out []*models.Message
	for _, m := range messages {
		if m.Status == models.MessageStatusConfirmed {
			out = append(out, m)
		}
	}
	return out
}

func TestFailedSendRestoresState(t *testing.T) {
	backend := newGatedBackend()
	c := NewController("c1", "alice", backend, NewBanner(time.Minute, nil))
	c.Receive(msg("1", "bob", "hi"))

	backend.gate("lost") <- errors.New("chat not found")
	_, err := c.Send(context.Background(), models.MessageDraft{Text: "lost"})
	require.Error(t, err)

	assert.Equal(t, []string{"1"}, ids(c.Messages()))
	text, visible := c.Banner().Current()
	assert.True(t, visible)
	assert.Equal(t, "chat not found", text)
}

func TestLoadKeepsPendingAndSurvivesFailure(t *testing.T) {
	backend := newGatedBackend()
	backend.stored = []*models.Message{msg("1", "bob", "one"), msg("2", "alice", "two")}
	c := NewController("c1", "alice", backend, nil)

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"1", "2"}, ids(c.Messages()))

	backend.listErr = errors.New("offline")
	assert.Error(t, c.Load(context.Background()))
	assert.Equal(t, []string{"1", "2"}, ids(c.Messages()))
}

func TestApplyIsIdempotent(t *testing.T) {
	c := NewController("c1", "alice", newGatedBackend(), nil)
	created := &websocket.Event{Type: websocket.EventMessageCreated, ChatID: "c1", Message: msg("1", "bob", "hi")}
	c.Apply(created)
	c.Apply(created)
	c.Apply(&websocket.Event{Type: websocket.EventMessageCreated, ChatID: "other", Message: msg("9", "bob", "x")})
	require.Equal(t, []string{"1"}, ids(c.Messages()))

	reaction := &websocket.Event{Type: websocket.EventReactionAdded, ChatID: "c1", MessageID: "1", Emoji: "🔥", Count: 2}
	c.Apply(reaction)
	c.Apply(reaction)
	c.Apply(&websocket.Event{Type: websocket.EventReactionAdded, ChatID: "c1", MessageID: "1", Emoji: "🔥", Count: 1})
	assert.Equal(t, 2, c.Messages()[0].Reactions["🔥"])

	c.Apply(&websocket.Event{Type: websocket.EventPinChanged, ChatID: "c1", MessageID: "1", Pinned: true})
	pinned, ok := c.Pinned()
	require.True(t, ok)
	assert.Equal(t, "1", pinned.ID)

	read := &websocket.Event{Type: websocket.EventMessageRead, ChatID: "c1", MessageID: "1", UserID: "alice"}
	c.Apply(read)
	c.Apply(read)
	assert.Equal(t, []string{"alice"}, c.Messages()[0].ReadBy)

	deleted := &websocket.Event{Type: websocket.EventMessageDeleted, ChatID: "c1", MessageID: "1"}
	c.Apply(deleted)
	c.Apply(deleted)
	assert.Empty(t, c.Messages())
}

func TestSearchIsCaseInsensitiveOverTextOnly(t *testing.T) {
	messages := []*models.Message{
		msg("1", "a", "Контрольная по ФИЗИКЕ"),
		{ID: "2", ChatID: "c1", Type: models.MessageTypeFile, File: &models.FileRef{OriginalName: "физике.pdf"}},
		msg("3", "b", "ничего"),
	}

	matches := Search(messages, "физике")
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].Message.ID)
	assert.Equal(t, "Контрольная по <mark>ФИЗИКЕ</mark>", matches[0].Highlighted)

	assert.Empty(t, Search(messages, "  "))
}

func TestHighlightEscapesHTML(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;<mark>Hi</mark>&lt;/b&gt; <mark>hi</mark>", Highlight("<b>Hi</b> hi", "hi"))
	assert.Equal(t, "a &amp; b", Highlight("a & b", ""))
}

func TestBannerRestartsInsteadOfStacking(t *testing.T) {
	var mu sync.Mutex
	var changes []string
	b := NewBanner(200*time.Millisecond, func(text string, visible bool) {
		mu.Lock()
		defer mu.Unlock()
		if !visible {
			changes = append(changes, "hide:"+text)
		}
	})

	b.Show("first")
	time.Sleep(120 * time.Millisecond)
	b.Show("second")
	time.Sleep(120 * time.Millisecond)

	text, visible := b.Current()
	assert.True(t, visible, "second show restarts the timer")
	assert.Equal(t, "second", text)

	require.Eventually(t, func() bool {
		_, visible := b.Current()
		return !visible
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hide:second"}, changes)
}

func TestReceiveFromOthersShowsBanner(t *testing.T) {
	c := NewController("c1", "alice", newGatedBackend(), NewBanner(time.Minute, nil))
	c.Receive(msg("1", "alice", "mine"))
	_, visible := c.Banner().Current()
	assert.False(t, visible)

	c.Receive(msg("2", "bob", "hello"))
	text, visible := c.Banner().Current()
	assert.True(t, visible)
	assert.Equal(t, "bob: hello", text)
}

type fakeDevice struct {
	startErr error
	starts   int
}

func (d *fakeDevice) Start(context.Context) error {
	d.starts++
	return d.startErr
}

func (d *fakeDevice) Stop() ([]byte, error) { return []byte("webm"), nil }

func TestRecorderSingleSession(t *testing.T) {
	device := &fakeDevice{}
	r := NewRecorder(device)

	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrRecordingActive)
	assert.Equal(t, 1, device.starts)
	assert.True(t, r.Recording())

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, "audio-message.webm", rec.Name)
	assert.Equal(t, "audio/webm", rec.MimeType)
	assert.Equal(t, []byte("webm"), rec.Data)
	assert.False(t, r.Recording())

	require.NoError(t, r.Start(context.Background()))
}

func TestRecorderStartFailureReleasesGuard(t *testing.T) {
	r := NewRecorder(&fakeDevice{startErr: errors.New("no microphone")})
	assert.Error(t, r.Start(context.Background()))
	assert.False(t, r.Recording())
}

func TestReaderDevice(t *testing.T) {
	r := NewRecorder(NewReaderDevice(strings.NewReader("voice")))
	require.NoError(t, r.Start(context.Background()))
	rec, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, "voice", string(rec.Data))

	draft := rec.Draft("alice", models.FileRef{StoredName: "1_audio-message.webm", MimeType: rec.MimeType})
	assert.Equal(t, models.MessageTypeAudio, draft.Type)
}
