package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/otpauth/internal/transport/http/handler"
	"github.com/ErlanBelekov/otpauth/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

type Handlers struct {
	Auth *handler.AuthHandler
	User *handler.UserHandler
}

// NewRouter wires the public OTP endpoints and the authenticated /me route.
// authMW validates bearer tokens; loadUser resolves the caller.
func NewRouter(logger *slog.Logger, h Handlers, authMW, loadUser gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		// Query strings carry codes on /auth/verify.
		Filters: []sloggin.Filter{sloggin.IgnorePath("/auth/verify")},
	}))
	r.Use(middleware.Metrics())

	auth := r.Group("/auth")
	auth.POST("/otp", h.Auth.RequestOTP)
	auth.POST("/otp/verify", h.Auth.VerifyOTP)
	auth.GET("/verify", h.Auth.ConfirmLink)
	auth.POST("/verify", h.Auth.VerifyLink)

	r.GET("/me", authMW, loadUser, h.User.Me)

	return r
}
