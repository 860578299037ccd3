package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const verificationSubject = "Email Verification Code"

var verificationTmpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="margin:0;padding:0;background-color:#ffffff;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;color:#1f2328;">
  <div style="max-width:560px;margin:0 auto;padding:32px 24px;">
    <h1 style="font-size:20px;font-weight:600;margin:0 0 24px;">{{.Title}}</h1>
    <p>Your one-time verification code is:</p>
    <div style="text-align:center;margin:25px 0;">
      <div style="font-size:32px;font-weight:bold;letter-spacing:5px;padding:12px 24px;background-color:#f7f7f7;display:inline-block;border-radius:4px;">{{.Code}}</div>
      <br>
      <a href="{{.Link}}" style="display:inline-block;padding:12px 24px;background-color:#1a74e4;color:#ffffff;text-decoration:none;border-radius:4px;font-weight:500;margin:20px 0;">Verify Email</a>
    </div>
    <p>This code will expire in {{.ExpiresIn}}.</p>
    <p>If you didn't request this code, please ignore this email.</p>
  </div>
</body>
</html>
`))

type verificationData struct {
	Title     string
	Code      string
	Link      string
	ExpiresIn string
}

// VerificationMessage renders the one-time code email for to.
func VerificationMessage(to Recipient, code, link string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := verificationTmpl.Execute(&buf, verificationData{
		Title:     "Email Verification",
		Code:      code,
		Link:      link,
		ExpiresIn: humanMinutes(ttl),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{To: to, Subject: verificationSubject, HTMLBody: buf.String()}, nil
}

func humanMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
