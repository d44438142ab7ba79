package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"docchat/internal/bootstrap"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger.With("component", "http")), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     app.Config.App.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.MaxMultipartMemory = int64(app.Config.App.MaxUploadMB) << 20

	healthHandler := handler.NewHealthHandler(app)
	authHandler := handler.NewAuthHandler(app.AuthService)
	documentHandler := handler.NewDocumentHandler(app.DocumentService, app.Config.App.MaxUploadMB)
	conversationHandler := handler.NewConversationHandler(app.ChatService)

	router.GET("/healthz", healthHandler.Check)

	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret, app.Sessions)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", requireAuth, authHandler.Logout)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	documentGroup := v1.Group("/documents")
	documentGroup.Use(requireAuth)
	documentGroup.POST("", documentHandler.Upload)
	documentGroup.GET("", documentHandler.List)
	documentGroup.POST("/:id/process", documentHandler.Process)

	conversationGroup := v1.Group("/conversations")
	conversationGroup.Use(requireAuth)
	conversationGroup.POST("", conversationHandler.Create)
	conversationGroup.GET("", conversationHandler.List)
	conversationGroup.POST("/:id/select", conversationHandler.Select)
	conversationGroup.GET("/:id/messages", conversationHandler.Messages)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(requireAuth)
	chatGroup.POST("/messages", conversationHandler.SendMessage)

	return router
}
