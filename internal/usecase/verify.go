package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/ErlanBelekov/otpauth/internal/metrics"
	"github.com/ErlanBelekov/otpauth/internal/otp"
	"github.com/ErlanBelekov/otpauth/internal/repository"
)

const verificationSucceeded = "Verification successful."

// SessionIssuer mints session tokens for a verified user.
type SessionIssuer interface {
	IssueTokens(ctx context.Context, user *domain.User) (*domain.Tokens, error)
}

type VerifyInput struct {
	Email        string
	Code         string
	IssueSession bool
}

// Verifier checks presented codes against the stored challenge.
type Verifier struct {
	users       repository.UserRepository
	challenges  repository.ChallengeRepository
	sessions    SessionIssuer
	maxAttempts int // 0 disables the cap
	options
}

func NewVerifier(
	users repository.UserRepository,
	challenges repository.ChallengeRepository,
	sessions SessionIssuer,
	maxAttempts int,
	opts ...Option,
) *Verifier {
	return &Verifier{
		users:       users,
		challenges:  challenges,
		sessions:    sessions,
		maxAttempts: maxAttempts,
		options:     applyOptions(opts),
	}
}

// Verify validates in.Code for in.Email. On success the challenge is gone,
// the email is marked verified and, if requested, tokens are attached.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) (*domain.VerificationResult, error) {
	res, err := v.verify(ctx, in)
	metrics.VerificationsTotal.WithLabelValues(outcome(err, "verified")).Inc()
	return res, err
}

func (v *Verifier) verify(ctx context.Context, in VerifyInput) (*domain.VerificationResult, error) {
	emailAddr := domain.NormalizeEmail(in.Email)
	if emailAddr == "" || in.Code == "" {
		return nil, domain.NewError(domain.KindValidation, errors.New("email and code are required"))
	}

	user, err := v.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindNotFound, err)
		}
		return nil, domain.NewError(domain.KindPersistence, fmt.Errorf("find user: %w", err))
	}

	c := user.Challenge
	if c == nil {
		return nil, domain.NewError(domain.KindNotFound, domain.ErrChallengeNotFound)
	}
	if v.maxAttempts > 0 && c.Attempts >= v.maxAttempts {
		return nil, domain.NewError(domain.KindLocked, nil)
	}

	now := v.now()
	if c.Expired(now) {
		return nil, domain.NewError(domain.KindExpired, nil)
	}

	// With a cap, the attempt is claimed before comparing so concurrent
	// guesses cannot compare more codes than the cap allows. Without one only
	// mismatches are counted.
	if v.maxAttempts > 0 {
		if err = v.countAttempt(ctx, user.ID, c.CodeHash); err != nil {
			return nil, err
		}
	}

	if !otp.Matches(in.Code, c.CodeHash) {
		if v.maxAttempts == 0 {
			err = v.countAttempt(ctx, user.ID, c.CodeHash)
			if err != nil && domain.KindOf(err) == domain.KindPersistence {
				return nil, err
			}
		}
		return nil, domain.NewError(domain.KindInvalidCode, nil)
	}

	verified, err := v.challenges.Consume(ctx, user.ID, c.CodeHash, now)
	if err != nil {
		if errors.Is(err, domain.ErrChallengeNotFound) {
			// Consumed or reissued concurrently.
			return nil, domain.NewError(domain.KindNotFound, err)
		}
		return nil, domain.NewError(domain.KindPersistence, fmt.Errorf("consume challenge: %w", err))
	}

	result := &domain.VerificationResult{
		Success: true,
		Message: verificationSucceeded,
		User:    verified,
	}
	if in.IssueSession {
		tokens, err := v.sessions.IssueTokens(ctx, verified)
		if err != nil {
			return nil, domain.NewError(domain.KindInternal, fmt.Errorf("issue tokens: %w", err))
		}
		result.Tokens = tokens
	}
	return result, nil
}

// countAttempt records one attempt against the challenge with codeHash. Keyed
// on the hash we compared against, so a reissue in between keeps its fresh
// zero count.
func (v *Verifier) countAttempt(ctx context.Context, userID, codeHash string) error {
	_, err := v.challenges.IncrementAttempts(ctx, userID, codeHash, v.maxAttempts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrChallengeLocked):
		return domain.NewError(domain.KindLocked, err)
	case errors.Is(err, domain.ErrChallengeNotFound):
		return domain.NewError(domain.KindNotFound, err)
	default:
		return domain.NewError(domain.KindPersistence, fmt.Errorf("increment attempts: %w", err))
	}
}
