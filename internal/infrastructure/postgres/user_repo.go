package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userColumns selects a user with its role names and, via LEFT JOIN, its live
// challenge. Keep in sync with scanUser.
const userColumns = `
	u.id, u.email, u.first_name, u.last_name, u.email_verified,
	u.created_at, u.updated_at,
	ARRAY(
		SELECT r.name FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id
		ORDER BY r.name
	) AS roles,
	c.code_hash, c.expires_at, c.attempts, c.last_sent_at`

const userFrom = `
	FROM users u
	LEFT JOIN login_challenges c ON c.user_id = u.id`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+` WHERE u.email = $1`, email)
	return scanUser(row)
}

// FindByID also receives subjects of externally issued tokens, which need
// not be UUIDs; those can never match.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if uuid.Validate(id) != nil {
		return nil, domain.ErrUserNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+` WHERE u.id = $1`, id)
	return scanUser(row)
}

// Create is safe under concurrent first requests for the same email: the
// loser of the insert race reads the winner's row.
func (r *UserRepository) Create(ctx context.Context, input domain.CreateUserInput) (*domain.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`,
		input.Email, input.FirstName, input.LastName,
	).Scan(&userID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Created concurrently; fall through to read it back.
	case err != nil:
		return nil, fmt.Errorf("insert user: %w", err)
	default:
		if input.RoleID != "" {
			if _, err = tx.Exec(ctx, `
				INSERT INTO user_roles (user_id, role_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING`,
				userID, input.RoleID,
			); err != nil {
				return nil, fmt.Errorf("assign role: %w", err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return r.FindByEmail(ctx, input.Email)
}

func (r *UserRepository) EnsureRole(ctx context.Context, name string) (*domain.Role, error) {
	// DO UPDATE rather than DO NOTHING so RETURNING yields the existing row.
	var role domain.Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`,
		name,
	).Scan(&role.ID, &role.Name)
	if err != nil {
		return nil, fmt.Errorf("ensure role %q: %w", name, err)
	}
	return &role, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		codeHash   *string
		expiresAt  *time.Time
		attempts   *int
		lastSentAt *time.Time
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.EmailVerified,
		&u.CreatedAt, &u.UpdatedAt, &u.Roles,
		&codeHash, &expiresAt, &attempts, &lastSentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if codeHash != nil {
		u.Challenge = &domain.Challenge{
			UserID:     u.ID,
			CodeHash:   *codeHash,
			ExpiresAt:  *expiresAt,
			Attempts:   *attempts,
			LastSentAt: *lastSentAt,
		}
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
