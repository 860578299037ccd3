package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

type Recipient struct {
	Email string
	Name  string
}

type Message struct {
	To       Recipient
	Subject  string
	HTMLBody string
}

// Receipt identifies an accepted message at the provider.
type Receipt struct {
	ID string
}

type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// LocalSender writes each message as an HTML file under dir, for ENV=local.
// Only recipient, subject and path are logged, never the body.
type LocalSender struct {
	dir    string
	logger *slog.Logger
}

func NewLocalSender(dir string, logger *slog.Logger) *LocalSender {
	return &LocalSender{dir: dir, logger: logger.With("component", "local_mail")}
}

func (s *LocalSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create mail dir: %w", err)
	}

	id := uuid.NewString()
	name := fmt.Sprintf("%d-%s.html", time.Now().UnixNano(), fileSafe(msg.To.Email))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(msg.HTMLBody), 0o600); err != nil {
		return nil, fmt.Errorf("write mail: %w", err)
	}

	s.logger.InfoContext(ctx, "email written (local dev)", "to", msg.To.Email, "subject", msg.Subject, "path", path)
	return &Receipt{ID: id}, nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, s)
}

// ResendSender sends emails via the Resend API in staging and production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	to := msg.To.Email
	if msg.To.Name != "" {
		to = (&mail.Address{Name: msg.To.Name, Address: msg.To.Email}).String()
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
	}
	resp, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}
	return &Receipt{ID: resp.Id}, nil
}

// NewSender returns a LocalSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from, dropDir string, logger *slog.Logger) Sender {
	if env == "local" {
		return NewLocalSender(dropDir, logger)
	}
	return NewResendSender(apiKey, from)
}
