package usecase

import (
	"time"

	"github.com/ErlanBelekov/otpauth/internal/otp"
)

type options struct {
	now   func() time.Time
	codes *otp.Generator
}

// Option customizes a ChallengeManager or Verifier.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCodeGenerator replaces the crypto/rand backed generator.
func WithCodeGenerator(g *otp.Generator) Option {
	return func(o *options) { o.codes = g }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now, codes: otp.NewGenerator(nil)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
