package otp

import "time"

// DefaultCooldown is the minimum time between two issuances for one user.
const DefaultCooldown = 60 * time.Second

// ThrottlePolicy decides whether a new code may be issued.
type ThrottlePolicy struct {
	Cooldown time.Duration
}

func NewThrottlePolicy(cooldown time.Duration) ThrottlePolicy {
	return ThrottlePolicy{Cooldown: cooldown}
}

// Check reports whether a code last sent at lastSentAt may be reissued at now.
// When it may not, remaining is the wait until it may.
// A zero lastSentAt means nothing was ever sent.
func (p ThrottlePolicy) Check(lastSentAt, now time.Time) (allowed bool, remaining time.Duration) {
	if lastSentAt.IsZero() {
		return true, 0
	}
	elapsed := now.Sub(lastSentAt)
	if elapsed >= p.Cooldown {
		return true, 0
	}
	return false, p.Cooldown - elapsed
}

// Cutoff is the latest lastSentAt that still allows reissue at now. Stores use
// it to make the throttle check part of the write.
func (p ThrottlePolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Cooldown)
}
