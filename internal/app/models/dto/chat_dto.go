package dto

import (
	"github.com/yigit/educhat/internal/app/models"
)

// --- Request DTOs ---

// CreateChatRequest represents data for creating a chat
type CreateChatRequest struct {
	Members []string `json:"members" binding:"required,min=1,dive,required"`
	Name    string   `json:"name" binding:"max=100"`
	Avatar  string   `json:"avatar"`
}

// DirectChatRequest asks for the two-member chat with a peer
type DirectChatRequest struct {
	PeerID string `json:"peerId" binding:"required"`
}

// ListChatsRequest filters chats by member
type ListChatsRequest struct {
	UserID string `form:"userId"`
}

// --- Response DTOs ---

// ChatListResponse represents a list of chats
type ChatListResponse struct {
	Chats []*models.Chat `json:"chats"`
}
