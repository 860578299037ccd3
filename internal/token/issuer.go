// Package token mints and validates session tokens for verified users.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

var ErrInvalid = errors.New("token is invalid")

type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
	Type  string   `json:"typ"`
}

// Issuer signs HS256 access and refresh tokens.
type Issuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(key []byte, issuer string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		key:        key,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (i *Issuer) IssueTokens(_ context.Context, user *domain.User) (*domain.Tokens, error) {
	now := time.Now()

	access, err := i.sign(user, typeAccess, now, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := i.sign(user, typeRefresh, now, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &domain.Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    i.accessTTL,
	}, nil
}

func (i *Issuer) sign(user *domain.User, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: user.Email,
		Roles: user.Roles,
		Type:  typ,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Subject validates an access token and returns the user ID it was issued for.
func (i *Issuer) Subject(_ context.Context, raw string) (string, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return "", ErrInvalid
	}
	if claims.Type != typeAccess || claims.Subject == "" {
		return "", ErrInvalid
	}
	return claims.Subject, nil
}
