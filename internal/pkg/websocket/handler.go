package websocket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// MembershipChecker verifies the caller belongs to a chat and names the hub
// room the caller's connection joins
type MembershipChecker interface {
	SubscriptionRoom(ctx context.Context, chatID, userID string) (string, error)
}

// Handler for WebSocket connections
type Handler struct {
	hub     *Hub
	members MembershipChecker
	inbound *InboundHandler
	onError func(c *gin.Context, err error)
	logger  zerolog.Logger
}

// NewHandler creates a new WebSocket handler. onError writes the HTTP
// response for a failed membership check.
func NewHandler(
	hub *Hub,
	members MembershipChecker,
	inbound *InboundHandler,
	onError func(c *gin.Context, err error),
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		hub:     hub,
		members: members,
		inbound: inbound,
		onError: onError,
		logger:  logger,
	}
}

// HandleConnection godoc
// @Summary Subscribe to chat events
// @Description Upgrades the connection to a WebSocket streaming best-effort chat events. Browsers pass the JWT as the token query parameter.
// @Tags chats, websocket
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat ID"
// @Param token query string false "JWT access token"
// @Success 101 {string} string "Switching Protocols to WebSocket"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 403 {object} dto.APIResponse "Not a chat member"
// @Failure 404 {object} dto.APIResponse "Chat not found"
// @Router /chats/{id}/ws [get]
func (h *Handler) HandleConnection(c *gin.Context) {
	chatID := c.Param("id")
	userID := c.GetString("userID")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context"})
		return
	}

	room, err := h.members.SubscriptionRoom(c.Request.Context(), chatID, userID)
	if err != nil {
		h.onError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("chatID", chatID).
			Str("userID", userID).
			Msg("Failed to upgrade connection to WebSocket")
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		chatID:  chatID,
		room:    room,
		inbound: h.inbound,
		logger:  h.logger,
	}
	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	h.logger.Info().
		Str("chatID", chatID).
		Str("userID", userID).
		Str("remoteAddr", conn.RemoteAddr().String()).
		Msg("WebSocket connection established")
}
