package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/domain"
)

// ChallengeRepository persists the single live challenge of each user. Every
// method is a read-modify-write on one user's row and is atomic with respect
// to the other methods for that user.
type ChallengeRepository interface {
	// Upsert inserts or overwrites the user's challenge with attempts reset to
	// zero. When a challenge exists whose LastSentAt is after notSentAfter the
	// row is left untouched and domain.ErrChallengeThrottled is returned along
	// with that blocking LastSentAt (zero if it could not be read back).
	Upsert(ctx context.Context, c *domain.Challenge, notSentAfter time.Time) (time.Time, error)

	// IncrementAttempts adds one attempt, provided the stored hash is still
	// codeHash and, when maxAttempts > 0, fewer than maxAttempts are recorded.
	// Returns the new count, domain.ErrChallengeLocked at the cap, or
	// domain.ErrChallengeNotFound if the challenge was deleted or reissued.
	IncrementAttempts(ctx context.Context, userID, codeHash string, maxAttempts int) (int, error)

	// Consume deletes the challenge if its hash is codeHash and it has not
	// expired at now, and marks the user's email verified, in one transaction.
	// Returns the updated user, or domain.ErrChallengeNotFound if nothing
	// matched.
	Consume(ctx context.Context, userID, codeHash string, now time.Time) (*domain.User, error)

	// DeleteExpired removes up to limit challenges that expired before cutoff
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
