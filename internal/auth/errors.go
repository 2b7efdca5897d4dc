package auth

import (
	"fmt"
	"time"
)

// Error is the closed set of authentication failures. Every variant renders
// a user-facing message purely from its typed fields, so the presentation
// layer never needs to inspect anything else.
type Error interface {
	error
	authError()
}

// WrongPINError means the submitted PIN did not verify. AttemptsRemaining
// tells the user how many tries are left before lockout.
type WrongPINError struct {
	AttemptsRemaining int
}

func (e *WrongPINError) Error() string {
	if e.AttemptsRemaining == 1 {
		return "wrong PIN, 1 attempt remaining"
	}
	return fmt.Sprintf("wrong PIN, %d attempts remaining", e.AttemptsRemaining)
}

func (e *WrongPINError) authError() {}

// LockedOutError means PIN entry is rejected until the lockout expires.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts, locked out for %s", e.Remaining.Round(time.Second))
}

func (e *LockedOutError) authError() {}

// StorageError wraps a failure of the underlying store while probing or
// writing vault metadata.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("vault storage failure: %v", e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) authError() {}

// KeyDerivationError wraps a failure to derive the master key.
type KeyDerivationError struct {
	Err error
}

func (e *KeyDerivationError) Error() string { return fmt.Sprintf("key derivation failed: %v", e.Err) }

func (e *KeyDerivationError) Unwrap() error { return e.Err }

func (e *KeyDerivationError) authError() {}

// SetupError means the new-vault input was rejected before anything was
// written.
type SetupError struct {
	Reason string
}

func (e *SetupError) Error() string { return "setup rejected: " + e.Reason }

func (e *SetupError) authError() {}
