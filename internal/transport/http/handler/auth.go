package handler

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/ErlanBelekov/otpauth/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

// challenger and verifier are the parts of the use cases the handler needs.
// Defined here so tests can inject fakes.
type challenger interface {
	RequestChallenge(ctx context.Context, email string) (*domain.Acknowledgement, error)
}

type verifier interface {
	Verify(ctx context.Context, in usecase.VerifyInput) (*domain.VerificationResult, error)
}

type AuthHandler struct {
	challenges challenger
	verifier   verifier
	logger     *slog.Logger
}

func NewAuthHandler(challenges challenger, verifier verifier, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		challenges: challenges,
		verifier:   verifier,
		logger:     logger.With("component", "auth_handler"),
	}
}

type requestOTPRequest struct {
	Email string `json:"email" binding:"required"`
}

type verifyOTPRequest struct {
	Email       string `json:"email"        binding:"required"`
	OTP         string `json:"otp"          binding:"required"`
	ShouldLogin bool   `json:"should_login"`
}

type userResponse struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	EmailVerified bool     `json:"email_verified"`
	Roles         []string `json:"roles"`
}

type verifyOTPResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	User         userResponse `json:"user"`
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresIn    int64        `json:"expires_in,omitempty"` // seconds
}

func toUserResponse(u *domain.User) userResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
		Roles:         roles,
	}
}

// POST /auth/otp
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req requestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errInvalidRequest})
		return
	}

	ack, err := h.challenges.RequestChallenge(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, h.logger, "request otp", errInvalidEmail, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": ack.Success, "message": ack.Message})
}

// POST /auth/otp/verify
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errInvalidRequest})
		return
	}
	h.verify(c, usecase.VerifyInput{Email: req.Email, Code: req.OTP, IssueSession: req.ShouldLogin})
}

// confirmTmpl posts the link parameters back to the page URL. Mail scanners
// prefetch links with GET, so the code is only consumed by the POST.
var confirmTmpl = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="robots" content="noindex"><title>Email Verification</title></head>
<body style="font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;text-align:center;padding:48px 24px;">
  <h1 style="font-size:20px;font-weight:600;">Email Verification</h1>
  <p>Confirm sign-in for {{.Email}}.</p>
  <form method="post">
    <input type="hidden" name="email" value="{{.Email}}">
    <input type="hidden" name="otp" value="{{.Code}}">
    <button type="submit" style="padding:12px 24px;background-color:#1a74e4;color:#ffffff;border:0;border-radius:4px;font-weight:500;">Verify Email</button>
  </form>
</body>
</html>
`))

type confirmData struct {
	Email string
	Code  string
}

// GET /auth/verify?email=<email>&otp=<code>
// Target of the link in the verification email. Renders a confirmation page
// and changes nothing.
func (h *AuthHandler) ConfirmLink(c *gin.Context) {
	emailAddr, code := c.Query("email"), c.Query("otp")
	if emailAddr == "" || code == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": errInvalidOrExpired})
		return
	}
	c.Render(http.StatusOK, render.HTML{
		Template: confirmTmpl,
		Data:     confirmData{Email: emailAddr, Code: code},
	})
}

// POST /auth/verify (form: email, otp)
// Submitted by the confirmation page. Always issues a session.
func (h *AuthHandler) VerifyLink(c *gin.Context) {
	emailAddr, code := c.PostForm("email"), c.PostForm("otp")
	if emailAddr == "" || code == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": errInvalidOrExpired})
		return
	}
	h.verify(c, usecase.VerifyInput{Email: emailAddr, Code: code, IssueSession: true})
}

func (h *AuthHandler) verify(c *gin.Context, in usecase.VerifyInput) {
	res, err := h.verifier.Verify(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, "verify otp", errMissingCode, err)
		return
	}

	resp := verifyOTPResponse{
		Success: res.Success,
		Message: res.Message,
		User:    toUserResponse(res.User),
	}
	if t := res.Tokens; t != nil {
		resp.AccessToken = t.AccessToken
		resp.RefreshToken = t.RefreshToken
		resp.TokenType = t.TokenType
		resp.ExpiresIn = int64(t.ExpiresIn.Seconds())
	}
	c.JSON(http.StatusOK, resp)
}
