package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/assistant"
	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/middleware"
)

// Error bodies of the assistant endpoint
const (
	errNoAPIKey    = "No OpenAI API key"
	errUpstreamAPI = "Ошибка OpenAI API"
)

// AssistantController exposes the reply generator without a chat
type AssistantController struct {
	generator *assistant.Generator
	logger    zerolog.Logger
}

// NewAssistantController creates a new AssistantController
func NewAssistantController(generator *assistant.Generator, logger zerolog.Logger) *AssistantController {
	return &AssistantController{generator: generator, logger: logger}
}

// Reply godoc
// @Summary Ask the assistant
// @Description Classifies the message, enriches it with live data and returns the completion. The response is not wrapped in the API envelope.
// @Tags assistant
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.AssistantRequest true "Message and history"
// @Success 200 {object} dto.AssistantResponse
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 429 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 500 {object} dto.AssistantErrorResponse
// @Router /assistant [post]
func (c *AssistantController) Reply(ctx *gin.Context) {
	var req dto.AssistantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	history := make([]assistant.ChatMessage, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, assistant.ChatMessage{Role: turn.Role, Content: turn.Content})
	}

	result, err := c.generator.Generate(ctx.Request.Context(), req.Message, history)
	if err != nil {
		if errors.Is(err, assistant.ErrNoAPIKey) {
			ctx.JSON(http.StatusInternalServerError, dto.AssistantErrorResponse{Error: errNoAPIKey})
			return
		}
		c.logger.Error().Err(err).Msg("assistant completion failed")
		ctx.JSON(http.StatusInternalServerError, dto.AssistantErrorResponse{Error: errUpstreamAPI})
		return
	}

	ctx.JSON(http.StatusOK, dto.AssistantResponse{Text: result.Text, Intent: result.Intent})
}
