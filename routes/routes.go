package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"numball/engine"
	"numball/handlers"
	"numball/middleware"
	"numball/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	gameHandler *handlers.GameHandler,
	practiceHandler *handlers.PracticeHandler,
	authService *services.AuthService,
	hub *services.Hub,
) {
	router.Use(middleware.CORS())

	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Mode catalog (public)
		api.GET("/modes", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"modes": engine.AllModes()})
		})

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.Auth(authService))
		{
			protected.GET("/users/me", userHandler.Me)
			protected.GET("/users/me/rank", userHandler.MyRank)
			protected.GET("/users/:id", userHandler.GetProfile)

			protected.GET("/rankings", userHandler.GlobalRanking)

			games := protected.Group("/games")
			{
				games.GET("", gameHandler.History)
				games.GET("/:id", gameHandler.GetGame)
			}

			practice := protected.Group("/practice")
			{
				practice.POST("", practiceHandler.Start)
				practice.GET("", practiceHandler.State)
				practice.POST("/guess", practiceHandler.Guess)
				practice.POST("/hint", practiceHandler.Hint)
				practice.GET("/recommend", practiceHandler.Recommend)
			}
		}
	}

	// WebSocket endpoint. Browsers cannot set headers on the upgrade
	// request, so the token rides in a query parameter.
	router.GET("/ws", func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
			return
		}
		user, err := authService.VerifyToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Str("user", user.ID).Msg("websocket upgrade failed")
			return
		}
		hub.RegisterClient(conn, user.ID, user.Username)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
