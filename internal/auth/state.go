// Package auth implements the PIN-authentication lifecycle: a state machine
// that probes for vault metadata, verifies PIN attempts with a brute-force
// lockout policy, and exclusively owns the master key while the vault is
// unlocked.
package auth

import (
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
)

// State is the sealed set of authentication states. Exactly one state is
// active at a time; only the Machine drives transitions.
type State interface {
	authState()
}

// Initializing is the startup state: vault existence unknown.
type Initializing struct{}

func (Initializing) authState() {}

// NotConfigured means no vault metadata exists yet; SetUp is the only way
// forward.
type NotConfigured struct{}

func (NotConfigured) authState() {}

// Locked means the vault exists and awaits a PIN. LockoutUntil is the zero
// time when no lockout is active; whether a lockout is in effect is always
// recomputed against the wall clock, so mere passage of time clears it.
type Locked struct {
	FailedAttempts int
	LockoutUntil   time.Time
}

func (Locked) authState() {}

// LockedOut reports whether PIN entry is currently rejected.
func (l Locked) LockedOut(now time.Time) bool {
	return !l.LockoutUntil.IsZero() && now.Before(l.LockoutUntil)
}

// Unlocked carries the master-key capability. The key exists only inside
// this state and is wiped on any transition away from it.
type Unlocked struct {
	Key *cryptox.MasterKey
}

func (Unlocked) authState() {}

// Failed is the terminal error state for unrecoverable storage or
// derivation failures. Retry returns the machine to Initializing.
type Failed struct {
	Cause error
}

func (Failed) authState() {}
