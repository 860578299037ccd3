package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/otpauth/internal/requestid"
	"github.com/gin-gonic/gin"
)

const errUnauthorized = "Unauthorized"

// SubjectParser validates a raw bearer token and returns its subject.
// token.Issuer and token.JWKS implement it.
type SubjectParser interface {
	Subject(ctx context.Context, raw string) (string, error)
}

// Auth validates a Bearer JWT and sets "userID" in the gin context.
// Parsers are tried in order; the first that accepts the token wins.
func Auth(parsers ...SubjectParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		rawToken := strings.TrimPrefix(header, "Bearer ")

		ctx := c.Request.Context()
		var userID string
		for _, p := range parsers {
			if sub, err := p.Subject(ctx, rawToken); err == nil && sub != "" {
				userID = sub
				break
			}
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set("userID", userID)
		c.Request = c.Request.WithContext(requestid.WithUserID(ctx, userID))
		c.Next()
	}
}
