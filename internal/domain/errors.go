package domain

import (
	"errors"
	"fmt"
	"time"
)

// Repository sentinels.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrChallengeThrottled = errors.New("challenge reissued within cooldown")
	ErrChallengeLocked    = errors.New("challenge attempt limit reached")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Kind classifies failures of the OTP flow. The HTTP layer renders one safe
// message per kind; NotFound, Expired, InvalidCode and Locked share a message
// so callers cannot tell whether an email is registered.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindThrottled
	KindNotFound
	KindExpired
	KindInvalidCode
	KindLocked
	KindDelivery
	KindPersistence
	KindInternal
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindValidation:  "validation",
	KindThrottled:   "throttled",
	KindNotFound:    "not_found",
	KindExpired:     "expired",
	KindInvalidCode: "invalid_code",
	KindLocked:      "locked",
	KindDelivery:    "delivery",
	KindPersistence: "persistence",
	KindInternal:    "internal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// InvalidOrExpired reports whether the kind is one of the verification
// failures collapsed into the generic "invalid or expired code" outcome.
func (k Kind) InvalidOrExpired() bool {
	switch k {
	case KindNotFound, KindExpired, KindInvalidCode, KindLocked:
		return true
	}
	return false
}

// Sentinels matching any *Error of the given kind via errors.Is.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrThrottled   = &Error{Kind: KindThrottled}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrExpired     = &Error{Kind: KindExpired}
	ErrInvalidCode = &Error{Kind: KindInvalidCode}
	ErrLocked      = &Error{Kind: KindLocked}
	ErrDelivery    = &Error{Kind: KindDelivery}
	ErrPersistence = &Error{Kind: KindPersistence}
	ErrInternal    = &Error{Kind: KindInternal}
)

type Error struct {
	Kind       Kind
	RetryAfter time.Duration // set for KindThrottled
	Err        error
}

func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so the package sentinels work
// with errors.Is regardless of cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfter returns the wait carried by a throttled error, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindThrottled {
		return e.RetryAfter
	}
	return 0
}
