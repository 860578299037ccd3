package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/ErlanBelekov/otpauth/internal/email"
	"github.com/ErlanBelekov/otpauth/internal/metrics"
	"github.com/ErlanBelekov/otpauth/internal/otp"
	"github.com/ErlanBelekov/otpauth/internal/repository"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultCodeTTL = 10 * time.Minute
	challengeSent  = "OTP sent successfully"
)

type ChallengeConfig struct {
	CodeTTL     time.Duration
	Cooldown    time.Duration
	DefaultRole string
	AppURL      string // base of the verification link
}

// ChallengeManager issues one-time codes: it resolves or creates the user,
// applies the reissue throttle, stores the code hash and emails the code.
type ChallengeManager struct {
	users      repository.UserRepository
	challenges repository.ChallengeRepository
	email      email.Sender
	throttle   otp.ThrottlePolicy
	codeTTL    time.Duration
	role       string
	appURL     string
	validate   *validator.Validate
	options
}

func NewChallengeManager(
	users repository.UserRepository,
	challenges repository.ChallengeRepository,
	sender email.Sender,
	cfg ChallengeConfig,
	opts ...Option,
) *ChallengeManager {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = otp.DefaultCooldown
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "user"
	}
	return &ChallengeManager{
		users:      users,
		challenges: challenges,
		email:      sender,
		throttle:   otp.NewThrottlePolicy(cfg.Cooldown),
		codeTTL:    cfg.CodeTTL,
		role:       cfg.DefaultRole,
		appURL:     strings.TrimRight(cfg.AppURL, "/"),
		validate:   validator.New(),
		options:    applyOptions(opts),
	}
}

// RequestChallenge issues a new code for emailAddr. The code itself only
// leaves this method inside the email.
func (m *ChallengeManager) RequestChallenge(ctx context.Context, emailAddr string) (*domain.Acknowledgement, error) {
	ack, err := m.requestChallenge(ctx, emailAddr)
	metrics.ChallengesRequestedTotal.WithLabelValues(outcome(err, "sent")).Inc()
	return ack, err
}

func (m *ChallengeManager) requestChallenge(ctx context.Context, emailAddr string) (*domain.Acknowledgement, error) {
	emailAddr = domain.NormalizeEmail(emailAddr)
	if err := m.validate.Var(emailAddr, "required,email,max=254"); err != nil {
		return nil, domain.NewError(domain.KindValidation, fmt.Errorf("email: %w", err))
	}

	user, err := m.resolveUser(ctx, emailAddr)
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, err)
	}

	now := m.now()
	if c := user.Challenge; c != nil {
		if ok, remaining := m.throttle.Check(c.LastSentAt, now); !ok {
			return nil, &domain.Error{Kind: domain.KindThrottled, RetryAfter: remaining}
		}
	}

	code, err := m.codes.Generate()
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, fmt.Errorf("generate code: %w", err))
	}

	challenge := &domain.Challenge{
		UserID:     user.ID,
		CodeHash:   otp.Hash(code),
		ExpiresAt:  now.Add(m.codeTTL),
		LastSentAt: now,
	}
	sentAt, err := m.challenges.Upsert(ctx, challenge, m.throttle.Cutoff(now))
	if err != nil {
		if errors.Is(err, domain.ErrChallengeThrottled) {
			// A concurrent request issued first; wait out its cooldown.
			_, wait := m.throttle.Check(sentAt, now)
			if wait <= 0 {
				wait = m.throttle.Cooldown
			}
			return nil, &domain.Error{Kind: domain.KindThrottled, RetryAfter: wait, Err: err}
		}
		return nil, domain.NewError(domain.KindPersistence, fmt.Errorf("store challenge: %w", err))
	}

	// The stored challenge stays valid if sending fails; the user can ask
	// again once the cooldown has passed.
	if err = m.send(ctx, user, code); err != nil {
		return nil, domain.NewError(domain.KindDelivery, err)
	}

	return &domain.Acknowledgement{Success: true, Message: challengeSent}, nil
}

// resolveUser finds the user or creates it with the default role. The role is
// ensured first so creation never depends on seeding.
func (m *ChallengeManager) resolveUser(ctx context.Context, emailAddr string) (*domain.User, error) {
	user, err := m.users.FindByEmail(ctx, emailAddr)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	role, err := m.users.EnsureRole(ctx, m.role)
	if err != nil {
		return nil, fmt.Errorf("ensure default role: %w", err)
	}

	user, err = m.users.Create(ctx, domain.CreateUserInput{
		Email:     emailAddr,
		FirstName: domain.LocalPart(emailAddr),
		RoleID:    role.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	metrics.UsersCreatedTotal.Inc()
	return user, nil
}

func (m *ChallengeManager) send(ctx context.Context, user *domain.User, code string) error {
	msg, err := email.VerificationMessage(
		email.Recipient{Email: user.Email, Name: user.DisplayName()},
		code,
		m.verificationLink(user.Email, code),
		m.codeTTL,
	)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = m.email.Send(ctx, msg)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.EmailSendDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (m *ChallengeManager) verificationLink(emailAddr, code string) string {
	q := url.Values{}
	q.Set("email", emailAddr)
	q.Set("otp", code)
	q.Set("sent", "true")
	return m.appURL + "/auth/verify?" + q.Encode()
}

// outcome is the metric label for err: success when nil, the kind otherwise.
func outcome(err error, success string) string {
	if err == nil {
		return success
	}
	return domain.KindOf(err).String()
}
