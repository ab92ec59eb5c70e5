// Package chatview keeps the ordered message list of one open chat. It merges
// the server state with optimistic local sends and pushed events, and backs
// search, notifications and voice capture for clients.
package chatview

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

// Backend is the message store as seen from a client
type Backend interface {
	ListMessages(ctx context.Context, chatID string) ([]*models.Message, error)
	SendMessage(ctx context.Context, chatID string, draft models.MessageDraft) (*models.Message, error)
}

// Controller owns the message list of the active chat
type Controller struct {
	mu       sync.Mutex
	chatID   string
	self     string
	backend  Backend
	banner   *Banner
	entries  []*models.Message
	localSeq int
}

// NewController binds a controller to chatID. self is the local user; the
// banner announces messages from everyone else.
func NewController(chatID, self string, backend Backend, banner *Banner) *Controller {
	if banner == nil {
		banner = NewBanner(DefaultBannerTTL, nil)
	}
	return &Controller{
		chatID:  chatID,
		self:    self,
		backend: backend,
		banner:  banner,
	}
}

// ChatID returns the active chat
func (c *Controller) ChatID() string { return c.chatID }

// Banner returns the notification banner
func (c *Controller) Banner() *Banner { return c.banner }

// Messages returns a snapshot of the list, pending entries included
func (c *Controller) Messages() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Message, len(c.entries))
	for i, m := range c.entries {
		out[i] = m.Clone()
	}
	return out
}

// Load replaces confirmed entries with the store state. Pending sends stay at
// the end. On failure the list is left as it was.
func (c *Controller) Load(ctx context.Context) error {
	messages, err := c.backend.ListMessages(ctx, c.chatID)
	if err != nil {
		c.banner.Show(err.Error())
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]*models.Message, 0, len(messages)+len(c.entries))
	for _, m := range messages {
		cm := m.Clone()
		cm.Status = models.MessageStatusConfirmed
		entries = append(entries, cm)
	}
	for _, m := range c.entries {
		if m.Status == models.MessageStatusPending {
			entries = append(entries, m)
		}
	}
	c.entries = entries
	return nil
}

// Send appends a pending entry right away and replaces it with the stored
// message once the backend answers. Confirmed messages land in the order
// their sends resolve. A failed send removes the pending entry.
func (c *Controller) Send(ctx context.Context, draft models.MessageDraft) (*models.Message, error) {
	if draft.Sender == "" {
		draft.Sender = c.self
	}

	c.mu.Lock()
	c.localSeq++
	pending := &models.Message{
		ID:        fmt.Sprintf("local-%d", c.localSeq),
		ChatID:    c.chatID,
		Sender:    draft.Sender,
		Text:      draft.Text,
		Type:      draft.Type,
		File:      draft.File,
		ReplyTo:   draft.ReplyTo,
		Reactions: map[string]int{},
		ReadBy:    []string{},
		Status:    models.MessageStatusPending,
	}
	c.entries = append(c.entries, pending)
	c.mu.Unlock()

	stored, err := c.backend.SendMessage(ctx, c.chatID, draft)

	c.mu.Lock()
	c.entries = slices.DeleteFunc(c.entries, func(m *models.Message) bool { return m == pending })
	if err != nil {
		c.mu.Unlock()
		c.banner.Show(err.Error())
		return nil, err
	}
	confirmed := stored.Clone()
	confirmed.Status = models.MessageStatusConfirmed
	c.upsertLocked(confirmed)
	c.mu.Unlock()

	return confirmed.Clone(), nil
}

// Receive merges a message pushed by the server
func (c *Controller) Receive(message *models.Message) {
	if message == nil || message.ChatID != c.chatID {
		return
	}
	cm := message.Clone()
	cm.Status = models.MessageStatusConfirmed

	c.mu.Lock()
	added := c.upsertLocked(cm)
	c.mu.Unlock()

	if added && cm.Sender != c.self {
		c.banner.Show(notice(cm))
	}
}

// upsertLocked replaces the entry with the same id or appends it. It reports
// whether the message was new.
func (c *Controller) upsertLocked(message *models.Message) bool {
	if i := c.indexLocked(message.ID); i >= 0 {
		c.entries[i] = message
		return false
	}
	c.entries = append(c.entries, message)
	return true
}

func (c *Controller) indexLocked(id string) int {
	return slices.IndexFunc(c.entries, func(m *models.Message) bool { return m.ID == id })
}

// Apply merges a websocket event. Events for other chats are ignored, and
// applying the same event twice leaves the list unchanged.
func (c *Controller) Apply(event *websocket.Event) {
	if event == nil || event.ChatID != c.chatID {
		return
	}

	switch event.Type {
	case websocket.EventMessageCreated, websocket.EventMessageUpdated:
		c.Receive(event.Message)
	case websocket.EventMessageDeleted:
		c.mu.Lock()
		c.entries = slices.DeleteFunc(c.entries, func(m *models.Message) bool { return m.ID == event.MessageID })
		c.mu.Unlock()
	case websocket.EventReactionAdded:
		c.mu.Lock()
		if i := c.indexLocked(event.MessageID); i >= 0 {
			m := c.entries[i]
			if m.Reactions == nil {
				m.Reactions = map[string]int{}
			}
			// counters only grow; a stale event must not lower them
			if event.Count > m.Reactions[event.Emoji] {
				m.Reactions[event.Emoji] = event.Count
			}
		}
		c.mu.Unlock()
	case websocket.EventPinChanged:
		c.mu.Lock()
		for _, m := range c.entries {
			m.IsPinned = event.Pinned && m.ID == event.MessageID
		}
		c.mu.Unlock()
	case websocket.EventMessageRead:
		c.mu.Lock()
		if i := c.indexLocked(event.MessageID); i >= 0 && !slices.Contains(c.entries[i].ReadBy, event.UserID) {
			c.entries[i].ReadBy = append(c.entries[i].ReadBy, event.UserID)
		}
		c.mu.Unlock()
	case websocket.EventAssistantState:
		if event.State == "FAILED" {
			c.banner.Show("Ошибка AI-бота")
		}
	}
}

// Search matches query against the current list
func (c *Controller) Search(query string) []Match {
	return Search(c.Messages(), query)
}

// Pinned returns the pinned message, if it is loaded
func (c *Controller) Pinned() (*models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.entries {
		if m.IsPinned {
			return m.Clone(), true
		}
	}
	return nil, false
}

func notice(m *models.Message) string {
	switch {
	case m.Text != "":
		return m.Sender + ": " + m.Text
	case m.File != nil:
		return m.Sender + ": " + m.File.DisplayName()
	default:
		return m.Sender
	}
}
