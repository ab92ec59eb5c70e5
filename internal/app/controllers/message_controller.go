package controllers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/app/services"
	"github.com/yigit/educhat/internal/middleware"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

// MessageController handles message operations inside a chat
type MessageController struct {
	messages    services.MessageService
	attachments services.AttachmentService
	reactions   services.ReactionService
	forwards    services.ForwardService
	threads     services.ThreadService
	logger      zerolog.Logger
}

// NewMessageController creates a new MessageController
func NewMessageController(
	messages services.MessageService,
	attachments services.AttachmentService,
	reactions services.ReactionService,
	forwards services.ForwardService,
	threads services.ThreadService,
	logger zerolog.Logger,
) *MessageController {
	return &MessageController{
		messages:    messages,
		attachments: attachments,
		reactions:   reactions,
		forwards:    forwards,
		threads:     threads,
		logger:      logger,
	}
}

// GetMessages godoc
// @Summary Get chat messages
// @Description All messages of a chat in insertion order. The assistant chat returns an empty list until it is stored.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=dto.MessageListResponse}
// @Failure 401 {object} dto.APIResponse{error=dto.ErrorDetail} "Unauthorized: JWT token missing or invalid"
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail} "Forbidden: User is not a member of the chat"
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Chat not found"
// @Router /chats/{id}/messages [get]
func (c *MessageController) GetMessages(ctx *gin.Context) {
	messages, err := c.messages.List(ctx.Request.Context(), ctx.Param("id"), middleware.UserID(ctx))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.MessageListResponse{Messages: messages}, ""))
}

// SendMessage godoc
// @Summary Send a message
// @Description Appends a message to the chat. Send JSON for text, or multipart/form-data with a "file" part for attachments. The binary is stored only for chat members and removed again when the message cannot be appended.
// @Tags messages
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param request body dto.SendMessageRequest false "Message (JSON)"
// @Param file formData file false "Attachment (multipart)"
// @Success 201 {object} dto.APIResponse{data=models.Message}
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail} "Text or file required"
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Chat or reply target not found"
// @Failure 500 {object} dto.APIResponse{error=dto.ErrorDetail} "Attachment could not be stored"
// @Router /chats/{id}/messages [post]
func (c *MessageController) SendMessage(ctx *gin.Context) {
	chatID := ctx.Param("id")
	actor := middleware.UserID(ctx)

	var req dto.SendMessageRequest
	if err := ctx.ShouldBind(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}
	if req.Sender != "" && req.Sender != actor {
		middleware.HandleAPIError(ctx, apperrors.NewForbiddenError("sender must be the authenticated user"))
		return
	}

	draft := models.MessageDraft{
		Sender:  actor,
		Text:    req.Text,
		Type:    models.MessageType(req.Type),
		ReplyTo: req.ReplyTo,
	}
	if req.FileRef != nil {
		if req.FileRef.StoredName == "" {
			middleware.HandleAPIError(ctx, apperrors.NewValidationError("fileRef", "storedName is required"))
			return
		}
		draft.File = req.FileRef
	}

	uploaded := ""
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		file, err := ctx.FormFile("file")
		if err != nil && err != http.ErrMissingFile {
			middleware.HandleBindError(ctx, err)
			return
		}
		if file != nil {
			// Nothing is written for a chat the caller cannot post to
			if err := c.messages.CanPost(ctx.Request.Context(), chatID, actor); err != nil {
				middleware.HandleAPIError(ctx, err)
				return
			}
			ref, err := c.upload(ctx, file)
			if err != nil {
				middleware.HandleAPIError(ctx, err)
				return
			}
			draft.File = &ref
			uploaded = ref.StoredName
		}
	}

	message, err := c.messages.Append(ctx.Request.Context(), chatID, draft)
	if err != nil {
		if uploaded != "" {
			if derr := c.attachments.Discard(ctx.Request.Context(), uploaded); derr != nil {
				c.logger.Warn().Err(derr).Str("storedName", uploaded).Msg("Orphaned attachment left in storage")
			}
		}
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(message, "Message sent"))
}

func (c *MessageController) upload(ctx *gin.Context, file *multipart.FileHeader) (models.FileRef, error) {
	src, err := file.Open()
	if err != nil {
		return models.FileRef{}, apperrors.NewStorageError(err)
	}
	defer src.Close()

	return c.attachments.Upload(ctx.Request.Context(), src, file.Filename, file.Header.Get("Content-Type"))
}

// EditMessage godoc
// @Summary Edit a message
// @Description Replaces the text of a message. Only its sender may edit it.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param messageId path string true "Message ID"
// @Param request body dto.EditMessageRequest true "New text"
// @Success 200 {object} dto.APIResponse{data=models.Message}
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail} "Forbidden: User is not the message sender"
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Message not found"
// @Router /chats/{id}/messages/{messageId} [patch]
func (c *MessageController) EditMessage(ctx *gin.Context) {
	var req dto.EditMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	message, err := c.messages.Edit(ctx.Request.Context(), ctx.Param("id"), ctx.Param("messageId"),
		middleware.UserID(ctx), models.MessagePatch{Text: req.Text})
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(message, "Message updated"))
}

// DeleteMessage godoc
// @Summary Delete a message
// @Description Deletes a message (sender or admin). Deleting a missing message succeeds. Replies keep pointing at it and render a tombstone.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param messageId path string true "Message ID"
// @Success 200 {object} dto.APIResponse{data=dto.SuccessResponse}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail} "Forbidden: User is not the message sender"
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Chat not found"
// @Router /chats/{id}/messages/{messageId} [delete]
func (c *MessageController) DeleteMessage(ctx *gin.Context) {
	err := c.messages.Delete(ctx.Request.Context(), ctx.Param("id"), ctx.Param("messageId"), middleware.UserID(ctx))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.SuccessResponse{Message: "Message deleted"}, "Message deleted"))
}

// AddReaction godoc
// @Summary React to a message
// @Description Adds one to the emoji counter of a message. Counters only grow.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param messageId path string true "Message ID"
// @Param request body dto.ReactionRequest true "Emoji"
// @Success 200 {object} dto.APIResponse{data=dto.ReactionResponse}
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Message not found"
// @Router /chats/{id}/messages/{messageId}/reactions [post]
func (c *MessageController) AddReaction(ctx *gin.Context) {
	var req dto.ReactionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	messageID := ctx.Param("messageId")
	count, err := c.reactions.AddReaction(ctx.Request.Context(), ctx.Param("id"), messageID, middleware.UserID(ctx), req.Emoji)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ReactionResponse{
		MessageID: messageID,
		Emoji:     req.Emoji,
		Count:     count,
	}, ""))
}

// PinMessage godoc
// @Summary Pin a message
// @Description Puts the message in the chat's single pin slot, replacing any previous pin
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param messageId path string true "Message ID"
// @Success 200 {object} dto.APIResponse{data=dto.PinResponse}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /chats/{id}/messages/{messageId}/pin [put]
func (c *MessageController) PinMessage(ctx *gin.Context) {
	c.setPinned(ctx, true)
}

// UnpinMessage godoc
// @Summary Unpin a message
// @Description Clears the pin slot if it holds this message
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param messageId path string true "Message ID"
// @Success 200 {object} dto.APIResponse{data=dto.PinResponse}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /chats/{id}/messages/{messageId}/pin [delete]
func (c *MessageController) UnpinMessage(ctx *gin.Context) {
	c.setPinned(ctx, false)
}

func (c *MessageController) setPinned(ctx *gin.Context, pinned bool) {
	chat, err := c.messages.SetPinned(ctx.Request.Context(), ctx.Param("id"), ctx.Param("messageId"), middleware.UserID(ctx), pinned)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PinResponse{
		ChatID:          chat.ID,
		PinnedMessageID: chat.PinnedMessageID,
	}, ""))
}

// MarkRead godoc
// @Summary Mark a message read
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param messageId path string true "Message ID"
// @Success 200 {object} dto.APIResponse{data=models.Message}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /chats/{id}/messages/{messageId}/read [post]
func (c *MessageController) MarkRead(ctx *gin.Context) {
	message, err := c.messages.MarkRead(ctx.Request.Context(), ctx.Param("id"), ctx.Param("messageId"), middleware.UserID(ctx))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(message, ""))
}

// ForwardMessage godoc
// @Summary Forward a message
// @Description Appends a copy to the target chat. Attachments are shared by name; reactions, pin and reply target are not copied.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Source chat ID"
// @Param messageId path string true "Message ID"
// @Param request body dto.ForwardRequest true "Target chat"
// @Success 201 {object} dto.APIResponse{data=models.Message}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /chats/{id}/messages/{messageId}/forward [post]
func (c *MessageController) ForwardMessage(ctx *gin.Context) {
	var req dto.ForwardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	message, err := c.forwards.Forward(ctx.Request.Context(), ctx.Param("id"), ctx.Param("messageId"), req.TargetChatID, middleware.UserID(ctx))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(message, "Message forwarded"))
}

// OpenThread godoc
// @Summary Open a reply thread
// @Description Direct replies of a message in chat order. A deleted parent is labelled "Сообщение удалено".
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param messageId path string true "Parent message ID"
// @Success 200 {object} dto.APIResponse{data=dto.ThreadResponse}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "Chat not found"
// @Router /chats/{id}/messages/{messageId}/thread [get]
func (c *MessageController) OpenThread(ctx *gin.Context) {
	parentID := ctx.Param("messageId")
	entries, label, err := c.threads.OpenThread(ctx.Request.Context(), ctx.Param("id"), parentID, middleware.UserID(ctx))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	resp := dto.ThreadResponse{
		ParentID:    parentID,
		ParentLabel: label,
		Replies:     []dto.ThreadEntryResponse{},
	}
	for entry := range entries {
		resp.Replies = append(resp.Replies, dto.ThreadEntryResponse{
			Message:     entry.Message,
			ParentLabel: entry.ParentLabel,
		})
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(resp, ""))
}

// SearchMessages godoc
// @Summary Search messages
// @Description Case-insensitive substring search over message text. Matches are HTML-escaped with <mark> around each hit.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param q query string true "Search text"
// @Success 200 {object} dto.APIResponse{data=dto.SearchResponse}
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /chats/{id}/messages/search [get]
func (c *MessageController) SearchMessages(ctx *gin.Context) {
	var req dto.SearchMessagesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	matches, err := c.messages.Search(ctx.Request.Context(), ctx.Param("id"), middleware.UserID(ctx), req.Query)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	resp := dto.SearchResponse{Query: req.Query, Matches: make([]dto.SearchMatchResponse, 0, len(matches))}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, dto.SearchMatchResponse{Message: m.Message, Highlighted: m.Highlighted})
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(resp, ""))
}

// GetPalette godoc
// @Summary Reaction palette
// @Description Emoji suggested by clients. Other emoji are accepted too.
// @Tags messages
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.PaletteResponse}
// @Router /reactions/palette [get]
func (c *MessageController) GetPalette(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PaletteResponse{Emoji: c.reactions.Palette()}, ""))
}
