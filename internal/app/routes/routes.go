package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yigit/educhat/internal/app/controllers"
	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/middleware"
	"github.com/yigit/educhat/internal/pkg/websocket"
)

// SetupRouter configures all application routes
func SetupRouter(
	router *gin.Engine,
	authController *controllers.AuthController,
	userController *controllers.UserController,
	chatController *controllers.ChatController,
	messageController *controllers.MessageController,
	uploadController *controllers.UploadController,
	assistantController *controllers.AssistantController,
	wsHandler *websocket.Handler,
	authMiddleware *middleware.AuthMiddleware,
	assistantLimiter *middleware.RateLimiter,
) {
	// API version group
	v1 := router.Group("/api/v1")

	// --- Public routes ---
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
	}

	v1.GET("/reactions/palette", messageController.GetPalette)

	// --- Authenticated routes ---
	authenticated := v1.Group("")
	authenticated.Use(authMiddleware.JWTAuth())
	{
		users := authenticated.Group("/users")
		{
			users.GET("/search", userController.SearchUsers)
			users.GET("/:id", userController.GetUser)
		}

		chats := authenticated.Group("/chats")
		{
			chats.GET("", chatController.ListChats)
			chats.POST("", chatController.CreateChat)
			chats.POST("/direct", chatController.FindOrCreateDirect)
			chats.GET("/:id", chatController.GetChat)
			chats.DELETE("/:id", chatController.DeleteChat)
			chats.GET("/:id/ws", wsHandler.HandleConnection)

			messages := chats.Group("/:id/messages")
			{
				messages.GET("", messageController.GetMessages)
				messages.POST("", messageController.SendMessage)
				messages.GET("/search", messageController.SearchMessages)
				messages.PATCH("/:messageId", messageController.EditMessage)
				messages.DELETE("/:messageId", messageController.DeleteMessage)
				messages.POST("/:messageId/reactions", messageController.AddReaction)
				messages.PUT("/:messageId/pin", messageController.PinMessage)
				messages.DELETE("/:messageId/pin", messageController.UnpinMessage)
				messages.POST("/:messageId/read", messageController.MarkRead)
				messages.POST("/:messageId/forward", messageController.ForwardMessage)
				messages.GET("/:messageId/thread", messageController.OpenThread)
			}
		}

		authenticated.POST("/upload", uploadController.Upload)
		authenticated.POST("/assistant", assistantLimiter.Middleware(), assistantController.Reply)

		admin := authenticated.Group("/admin")
		admin.Use(authMiddleware.AdminRequired())
		{
			admin.DELETE("/users/:id", userController.DeleteUser)
			admin.POST("/uploads/repair", uploadController.RepairAttachments)
		}
	}

	// Health check endpoint (public)
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"status": "ok"}, ""))
	})
}
