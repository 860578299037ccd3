package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/gin-gonic/gin"
)

type userLoader interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// LoadUser runs after Auth. It resolves "userID" to the stored user and sets
// it as "user". A token whose user no longer exists is rejected.
func LoadUser(users userLoader, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
				return
			}
			logger.ErrorContext(c.Request.Context(), "load user", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				gin.H{"error": "Internal server error"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}
