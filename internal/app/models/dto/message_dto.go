package dto

import (
	"github.com/yigit/educhat/internal/app/models"
)

// --- Request DTOs ---

// SendMessageRequest represents a new message. Multipart requests carry the
// binary in the "file" part and the rest as form fields; JSON requests may
// reference a binary stored earlier through /upload.
type SendMessageRequest struct {
	Sender  string          `json:"sender" form:"sender"`
	Text    string          `json:"text" form:"text" binding:"max=4000"`
	Type    string          `json:"type" form:"type" binding:"omitempty,oneof=text audio image file"`
	ReplyTo string          `json:"replyTo" form:"replyTo"`
	FileRef *models.FileRef `json:"fileRef" form:"-"`
}

// EditMessageRequest replaces the text of a message
type EditMessageRequest struct {
	Text string `json:"text" binding:"required,max=4000"`
}

// ReactionRequest adds one emoji to a message
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

// ForwardRequest names the chat a message is forwarded to
type ForwardRequest struct {
	TargetChatID string `json:"targetChatId" binding:"required"`
}

// SearchMessagesRequest holds the search query
type SearchMessagesRequest struct {
	Query string `form:"q" binding:"required"`
}

// --- Response DTOs ---

// MessageListResponse represents the ordered messages of a chat
type MessageListResponse struct {
	Messages []*models.Message `json:"messages"`
}

// ReactionResponse carries the updated count of one emoji
type ReactionResponse struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Count     int    `json:"count"`
}

// PinResponse reports the pin slot of a chat after a toggle
type PinResponse struct {
	ChatID          string `json:"chatId"`
	PinnedMessageID string `json:"pinnedMessageId"`
}

// ThreadEntryResponse is one reply together with its parent label
type ThreadEntryResponse struct {
	Message     *models.Message `json:"message"`
	ParentLabel string          `json:"parentLabel"`
}

// ThreadResponse lists the direct replies of a message
type ThreadResponse struct {
	ParentID    string                `json:"parentId"`
	ParentLabel string                `json:"parentLabel"`
	Replies     []ThreadEntryResponse `json:"replies"`
}

// SearchMatchResponse is one search hit with highlighted HTML
type SearchMatchResponse struct {
	Message     *models.Message `json:"message"`
	Highlighted string          `json:"highlighted"`
}

// SearchResponse lists messages whose text matches a query
type SearchResponse struct {
	Query   string                `json:"query"`
	Matches []SearchMatchResponse `json:"matches"`
}

// PaletteResponse lists the suggested reaction emoji
type PaletteResponse struct {
	Emoji []string `json:"emoji"`
}
