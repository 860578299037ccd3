package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

// Upsert folds the throttle check into the write: the conflict branch only
// fires when the existing row was sent at or before notSentAfter, so two
// concurrent issuances cannot both succeed.
func (r *ChallengeRepository) Upsert(ctx context.Context, c *domain.Challenge, notSentAfter time.Time) (time.Time, error) {
	var userID string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO login_challenges (user_id, code_hash, expires_at, attempts, last_sent_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET    code_hash    = EXCLUDED.code_hash,
		       expires_at   = EXCLUDED.expires_at,
		       attempts     = 0,
		       last_sent_at = EXCLUDED.last_sent_at,
		       updated_at   = NOW()
		WHERE  login_challenges.last_sent_at <= $5
		RETURNING user_id`,
		c.UserID, c.CodeHash, c.ExpiresAt, c.LastSentAt, notSentAfter,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.blockingSentAt(ctx, c.UserID), domain.ErrChallengeThrottled
		}
		return time.Time{}, fmt.Errorf("upsert challenge: %w", err)
	}
	return c.LastSentAt, nil
}

// blockingSentAt reads the LastSentAt that made an upsert lose. It runs as a
// new statement so it sees the row committed by the winner.
func (r *ChallengeRepository) blockingSentAt(ctx context.Context, userID string) time.Time {
	var sentAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT last_sent_at FROM login_challenges WHERE user_id = $1`, userID,
	).Scan(&sentAt)
	if err != nil {
		return time.Time{}
	}
	return sentAt
}

func (r *ChallengeRepository) IncrementAttempts(ctx context.Context, userID, codeHash string, maxAttempts int) (int, error) {
	// The EXISTS branch reads the pre-update snapshot and tells a capped row
	// apart from a missing one.
	var (
		attempts *int
		exists   bool
	)
	err := r.pool.QueryRow(ctx, `
		WITH bumped AS (
			UPDATE login_challenges
			SET    attempts   = attempts + 1,
			       updated_at = NOW()
			WHERE  user_id = $1 AND code_hash = $2
			  AND  ($3::int = 0 OR attempts < $3::int)
			RETURNING attempts
		)
		SELECT (SELECT attempts FROM bumped),
		       EXISTS (SELECT 1 FROM login_challenges WHERE user_id = $1 AND code_hash = $2)`,
		userID, codeHash, maxAttempts,
	).Scan(&attempts, &exists)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	switch {
	case attempts != nil:
		return *attempts, nil
	case exists:
		return 0, domain.ErrChallengeLocked
	default:
		return 0, domain.ErrChallengeNotFound
	}
}

func (r *ChallengeRepository) Consume(ctx context.Context, userID, codeHash string, now time.Time) (*domain.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Matching on the hash means a code superseded by a concurrent reissue
	// cannot be consumed.
	tag, err := tx.Exec(ctx, `
		DELETE FROM login_challenges
		WHERE user_id = $1 AND code_hash = $2 AND expires_at >= $3`,
		userID, codeHash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("delete challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrChallengeNotFound
	}

	if _, err = tx.Exec(ctx, `
		UPDATE users SET email_verified = TRUE, updated_at = NOW()
		WHERE id = $1`, userID,
	); err != nil {
		return nil, fmt.Errorf("mark email verified: %w", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+userColumns+userFrom+` WHERE u.id = $1`, userID)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return user, nil
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM login_challenges
		WHERE user_id IN (
			SELECT user_id FROM login_challenges
			WHERE  expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
