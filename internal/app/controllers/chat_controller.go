package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/app/services"
	"github.com/yigit/educhat/internal/middleware"
)

// ChatController handles chat operations
type ChatController struct {
	chatService services.ChatService
}

// NewChatController creates a new ChatController
func NewChatController(chatService services.ChatService) *ChatController {
	return &ChatController{
		chatService: chatService,
	}
}

// ListChats godoc
// @Summary List chats
// @Description Chats the given user belongs to. Listing another user's chats requires the admin role.
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param userId query string false "Member to filter by (default: caller)"
// @Success 200 {object} dto.APIResponse{data=dto.ChatListResponse}
// @Failure 401 {object} dto.APIResponse{error=dto.ErrorDetail} "Unauthorized: JWT token missing or invalid"
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /chats [get]
func (c *ChatController) ListChats(ctx *gin.Context) {
	var req dto.ListChatsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	chats, err := c.chatService.ListChats(ctx.Request.Context(), middleware.UserID(ctx), req.UserID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ChatListResponse{Chats: chats}, ""))
}

// CreateChat godoc
// @Summary Create a chat
// @Description Creates a chat with the given members; the caller is always added
// @Tags chats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateChatRequest true "Chat members and display data"
// @Success 201 {object} dto.APIResponse{data=models.Chat}
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail} "Members required"
// @Failure 401 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /chats [post]
func (c *ChatController) CreateChat(ctx *gin.Context) {
	var req dto.CreateChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	chat, err := c.chatService.CreateChat(ctx.Request.Context(), middleware.UserID(ctx), &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(chat, "Chat created"))
}

// FindOrCreateDirect godoc
// @Summary Open a direct chat
// @Description Returns the two-member chat between the caller and peerId, creating it when missing
// @Tags chats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.DirectChatRequest true "Peer"
// @Success 200 {object} dto.APIResponse{data=models.Chat} "Existing chat"
// @Success 201 {object} dto.APIResponse{data=models.Chat} "Chat created"
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "User not found"
// @Router /chats/direct [post]
func (c *ChatController) FindOrCreateDirect(ctx *gin.Context) {
	var req dto.DirectChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	chat, created, err := c.chatService.FindOrCreateDirect(ctx.Request.Context(), middleware.UserID(ctx), req.PeerID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ctx.JSON(status, dto.NewSuccessResponse(chat, ""))
}

// GetChat godoc
// @Summary Get a chat
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=models.Chat}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail} "Forbidden: User is not a member of the chat"
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Chat not found"
// @Router /chats/{id} [get]
func (c *ChatController) GetChat(ctx *gin.Context) {
	chat, err := c.chatService.GetChat(ctx.Request.Context(), ctx.Param("id"), middleware.UserID(ctx))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(chat, ""))
}

// DeleteChat godoc
// @Summary Delete a chat
// @Description Deletes the chat and all of its messages for every member
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=dto.SuccessResponse}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Chat not found"
// @Router /chats/{id} [delete]
func (c *ChatController) DeleteChat(ctx *gin.Context) {
	if err := c.chatService.DeleteChat(ctx.Request.Context(), ctx.Param("id"), middleware.UserID(ctx)); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.SuccessResponse{Message: "Chat deleted"}, "Chat deleted"))
}
