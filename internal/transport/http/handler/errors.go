package handler

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	errInternalServer   = "Internal server error"
	errInvalidRequest   = "Invalid request"
	errInvalidEmail     = "A valid email address is required"
	errMissingCode      = "Email and code are required"
	errTooManyRequests  = "Please wait before requesting another code"
	errInvalidOrExpired = "Invalid or expired code"
	errDelivery         = "Could not send the verification email"
)

// statusFor maps an error kind to the HTTP status and the message shown to
// clients. Not-found, expired, mismatched and locked codes share one answer.
// invalidInput is the message for validation failures of the calling endpoint.
func statusFor(kind domain.Kind, invalidInput string) (int, string) {
	switch {
	case kind == domain.KindValidation:
		return http.StatusBadRequest, invalidInput
	case kind == domain.KindThrottled:
		return http.StatusTooManyRequests, errTooManyRequests
	case kind.InvalidOrExpired():
		return http.StatusUnauthorized, errInvalidOrExpired
	case kind == domain.KindDelivery:
		return http.StatusBadGateway, errDelivery
	default:
		return http.StatusInternalServerError, errInternalServer
	}
}

// writeError renders err. Server-side failures are logged with the cause;
// the cause never reaches the response body.
func writeError(c *gin.Context, logger *slog.Logger, msg, invalidInput string, err error) {
	kind := domain.KindOf(err)
	status, body := statusFor(kind, invalidInput)

	if kind == domain.KindThrottled {
		if d := domain.RetryAfter(err); d > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), msg, "kind", kind.String(), "error", err)
	} else {
		logger.DebugContext(c.Request.Context(), msg, "kind", kind.String())
	}

	c.JSON(status, gin.H{"success": false, "error": body})
}
