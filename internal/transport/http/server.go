package http

import (
	"github.com/gin-gonic/gin"

	"supportchat/internal/bootstrap"
	"supportchat/internal/transport/http/handler"
	"supportchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.AccessLog(app.Logger.Named("http")),
		middleware.Recovery(app.Logger),
		middleware.CORS(middleware.DefaultCORSConfig()),
	)

	healthHandler := handler.NewHealthHandler(app)
	chatHandler := handler.NewChatHandler(app.ChatService)

	router.GET("/healthz", healthHandler.Check)

	api := router.Group("/api")
	api.POST("/chat", chatHandler.Chat)
	api.GET("/conversations/:sessionId", chatHandler.GetConversation)
	api.GET("/sessions", chatHandler.ListSessions)

	return router
}
