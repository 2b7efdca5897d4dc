package auth

import "time"

// LockoutPolicy decides when repeated PIN failures trigger a lockout and for
// how long. The duration is derived purely from the failed-attempt count, so
// the policy is monotonic and needs no hidden state: more failures never
// shorten a lockout.
type LockoutPolicy struct {
	// MaxAttempts is the failure count at which lockouts begin.
	MaxAttempts int
	// BaseDelay is the first lockout duration; it doubles per further failure.
	BaseDelay time.Duration
	// MaxDelay caps the growth.
	MaxDelay time.Duration
}

// DefaultLockoutPolicy locks after 5 failures for 30s, doubling per failure
// up to 15 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: 15 * time.Minute}
}

// Delay returns the lockout duration after failedAttempts total failures;
// zero means no lockout yet.
func (p LockoutPolicy) Delay(failedAttempts int) time.Duration {
	if failedAttempts < p.MaxAttempts {
		return 0
	}
	shift := failedAttempts - p.MaxAttempts
	// 63 shifts would already overflow a Duration; the cap makes large
	// shifts irrelevant.
	if shift > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay << shift
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}
