package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/auth"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
)

// SetUp configures a fresh vault: prompts for a PIN twice and creates the
// vault metadata on the remote store.
func (a *App) SetUp(ctx context.Context) error {
	pin, err := GetPIN(a.out, "Choose a PIN: ")
	if err != nil {
		return err
	}
	defer cryptox.ClearBytes(pin)

	confirm, err := GetPIN(a.out, "Confirm PIN: ")
	if err != nil {
		return err
	}
	defer cryptox.ClearBytes(confirm)

	if err := a.service.SetUp(ctx, pin, confirm); err != nil {
		fmt.Fprintf(a.out, "Setup failed: %v\n", err)
		return err
	}
	fmt.Fprintln(a.out, "Vault created. Use 'unlock' to open it.")
	return nil
}

// Unlock prompts for the PIN and opens the vault.
func (a *App) Unlock(ctx context.Context) error {
	pin, err := GetPIN(a.out, "Enter PIN: ")
	if err != nil {
		return err
	}
	defer cryptox.ClearBytes(pin)

	if err := a.service.Unlock(ctx, pin); err != nil {
		a.reportUnlockError(err)
		return err
	}
	fmt.Fprintln(a.out, "Vault unlocked.")
	return nil
}

func (a *App) reportUnlockError(err error) {
	var wrong *auth.WrongPINError
	var lockedOut *auth.LockedOutError
	switch {
	case errors.As(err, &wrong):
		fmt.Fprintf(a.out, "Wrong PIN, %d attempts remaining.\n", wrong.AttemptsRemaining)
	case errors.As(err, &lockedOut):
		fmt.Fprintf(a.out, "Too many failed attempts, try again in %s.\n", lockedOut.Remaining.Round(time.Second))
	default:
		fmt.Fprintf(a.out, "Unlock failed: %v\n", err)
	}
}

// Lock closes the vault and wipes the master key.
func (a *App) Lock(ctx context.Context) error {
	a.service.Lock()
	fmt.Fprintln(a.out, "Vault locked.")
	return nil
}

// Status prints the current authentication state, retrying initialization
// when a previous probe failed.
func (a *App) Status(ctx context.Context) error {
	if _, failed := a.service.State().(auth.Failed); failed {
		a.service.Retry(ctx)
	}
	fmt.Fprintf(a.out, "Vault status: %s\n", a.statusLine())
	return nil
}
