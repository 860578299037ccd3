package domain

import (
	"strings"
	"time"
)

// Challenge is the live one-time code state of a user. At most one exists per
// user; reissuing overwrites it.
type Challenge struct {
	UserID     string
	CodeHash   string
	ExpiresAt  time.Time
	Attempts   int
	LastSentAt time.Time
}

// Expired reports whether the challenge can no longer be verified at now.
// A challenge is still valid at exactly ExpiresAt.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Acknowledgement is returned by a successful issuance. It never carries the
// code or its hash.
type Acknowledgement struct {
	Success bool
	Message string
}

type VerificationResult struct {
	Success bool
	Message string
	User    *User
	Tokens  *Tokens // nil unless a session was requested
}

// NormalizeEmail trims surrounding whitespace and lowercases the address so
// case variants resolve to the same user.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalPart returns the part of an address before the last "@".
func LocalPart(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
