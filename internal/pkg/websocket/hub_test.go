package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/educhat/internal/app/models"
)

type allowAll struct{}

func (allowAll) SubscriptionRoom(_ context.Context, chatID, userID string) (string, error) {
	if chatID == "bot-chat" {
		return PrivateRoom(chatID, userID), nil
	}
	return chatID, nil
}

type readRecorder struct {
	calls chan [3]string
}

func (r *readRecorder) RecordRead(_ context.Context, chatID, messageID, userID string) error {
	r.calls <- [3]string{chatID, messageID, userID}
	return nil
}

func newTestServer(t *testing.T) (*Hub, *readRecorder, string) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	reads := &readRecorder{calls: make(chan [3]string, 1)}
	handler := NewHandler(hub, allowAll{}, NewInboundHandler(reads, hub, zerolog.Nop()),
		func(c *gin.Context, err error) { c.AbortWithStatus(http.StatusForbidden) }, zerolog.Nop())

	r := gin.New()
	r.GET("/chats/:id/ws", func(c *gin.Context) {
		c.Set("userID", c.DefaultQuery("as", "alice"))
		handler.HandleConnection(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, reads, "ws" + strings.TrimPrefix(srv.URL, "http") + "/chats/c1/ws"
}

func TestPrivateRoomEventsReachOnlyTheirUser(t *testing.T) {
	hub, _, url := newTestServer(t)
	botURL := strings.Replace(url, "/chats/c1/ws", "/chats/bot-chat/ws", 1)

	alice, _, err := gorillaws.DefaultDialer.Dial(botURL+"?as=alice", nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := gorillaws.DefaultDialer.Dial(botURL+"?as=bob", nil)
	require.NoError(t, err)
	defer bob.Close()

	require.Eventually(t, func() bool {
		return hub.GetClientsCount(PrivateRoom("bot-chat", "alice")) == 1 &&
			hub.GetClientsCount(PrivateRoom("bot-chat", "bob")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.GetClientsCount("bot-chat"))

	hub.BroadcastToChat(&Event{
		Type:    EventMessageCreated,
		ChatID:  "bot-chat",
		Room:    PrivateRoom("bot-chat", "alice"),
		Message: &models.Message{ID: "1", Sender: "alice", Text: "мой пароль 1234"},
	})

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)
	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "bot-chat", event.ChatID)
	assert.Equal(t, "1", event.Message.ID)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's assistant chat")
}

func TestHubDeliversChatEvents(t *testing.T) {
	hub, _, url := newTestServer(t)

	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientsCount("c1") == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToChat(&Event{Type: EventMessageCreated, ChatID: "other"})
	hub.BroadcastToChat(&Event{Type: EventMessageCreated, ChatID: "c1", Message: &models.Message{ID: "42", Text: "hi"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, EventMessageCreated, event.Type)
	assert.Equal(t, "42", event.Message.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestInboundReadReceiptIsPinnedToConnection(t *testing.T) {
	_, reads, url := newTestServer(t)

	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// spoofed chat and user are overwritten
	require.NoError(t, conn.WriteJSON(Event{Type: EventMessageRead, ChatID: "x", UserID: "mallory", MessageID: "7"}))

	select {
	case call := <-reads.calls:
		assert.Equal(t, [3]string{"c1", "7", "alice"}, call)
	case <-time.After(2 * time.Second):
		t.Fatal("read receipt not recorded")
	}
}
