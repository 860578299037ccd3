package handler

import (
	"net/http"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/gin-gonic/gin"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// GET /me
// Runs behind middleware.LoadUser, which puts the caller into the context.
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := c.Get("user")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user.(*domain.User)))
}
