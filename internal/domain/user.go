package domain

import (
	"time"
)

// User is the identity tied to a normalized email address.
type User struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	EmailVerified bool
	Roles         []string
	Challenge     *Challenge // nil when no challenge is live
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayName is the name used when addressing the user by email.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return LocalPart(u.Email)
}

type Role struct {
	ID   string
	Name string
}

type CreateUserInput struct {
	Email     string
	FirstName string
	LastName  string
	RoleID    string
}

// Tokens is the output of session issuance.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
}
