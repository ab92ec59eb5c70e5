package models

import (
	"slices"
	"strings"
	"time"
)

// MessageType represents the kind of content a message carries
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeBot   MessageType = "bot"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeAudio, MessageTypeImage, MessageTypeFile, MessageTypeBot:
		return true
	}
	return false
}

// MessageStatus tags a message as an optimistic local entry or a stored one
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusConfirmed MessageStatus = "confirmed"
)

// Message is one unit of chat content
type Message struct {
	ID        string         `json:"id" db:"id" example:"1718000000000"`
	ChatID    string         `json:"chatId" db:"chat_id"`
	Sender    string         `json:"sender" db:"sender"`
	Text      string         `json:"text,omitempty" db:"text"`
	Type      MessageType    `json:"type" db:"type" example:"text"`
	File      *FileRef       `json:"fileRef,omitempty"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
	EditedAt  *time.Time     `json:"editedAt,omitempty" db:"edited_at"`
	Reactions map[string]int `json:"reactions"`
	ReplyTo   string         `json:"replyTo,omitempty" db:"reply_to"`
	ReadBy    []string       `json:"readBy"`
	IsPinned  bool           `json:"isPinned"`
	Status    MessageStatus  `json:"status" example:"confirmed"`
}

// MessageDraft is the caller supplied part of a new message
type MessageDraft struct {
	Sender  string
	Text    string
	Type    MessageType
	File    *FileRef
	ReplyTo string
	// Audience is the user an assistant chat message is delivered to when it
	// differs from Sender
	Audience string
}

// MessagePatch is an edit applied to an existing message
type MessagePatch struct {
	Text string
}

// Clone returns a deep copy so callers never share maps or slices with a store
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.File != nil {
		f := *m.File
		c.File = &f
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	c.Reactions = make(map[string]int, len(m.Reactions))
	for k, v := range m.Reactions {
		c.Reactions[k] = v
	}
	c.ReadBy = slices.Clone(m.ReadBy)
	if c.ReadBy == nil {
		c.ReadBy = []string{}
	}
	return &c
}

// HasFile reports whether the message references a stored attachment
func (m *Message) HasFile() bool {
	return m != nil && m.File != nil && m.File.StoredName != ""
}

// TypeForMime derives the message type of an attachment from its mime type
func TypeForMime(mime string) MessageType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MessageTypeImage
	case strings.HasPrefix(mime, "audio/"):
		return MessageTypeAudio
	default:
		return MessageTypeFile
	}
}
