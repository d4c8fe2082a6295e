package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"numball/services"
)

// Auth validates the bearer token and stores the user's identity in the gin
// context. Banned accounts are rejected even with a valid token.
func Auth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		user, err := authService.VerifyToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrBanned) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is banned"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Next()
	}
}
