package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with
// a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a
// lightweight stub.
type execIface interface {
	isUnlocked() bool
	SetUp(ctx context.Context) error
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context) error
	AddNote(ctx context.Context) error
	AddLogin(ctx context.Context) error
	AddCreditCard(ctx context.Context) error
	Cleanup(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the vaultsync CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers report
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("vault> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: (l)ist, show, addnote, addlogin, addcard, cleanup, status, lock, exit")
			} else {
				printlnFn("Available commands: setup, unlock, status, exit")
			}

		case "setup":
			_ = a.SetUp(ctx)

		case "unlock":
			_ = a.Unlock(ctx)

		case "lock":
			_ = a.Lock(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "show":
			_ = a.Show(ctx)

		case "addnote":
			_ = a.AddNote(ctx)

		case "addlogin":
			_ = a.AddLogin(ctx)

		case "addcard":
			_ = a.AddCreditCard(ctx)

		case "cleanup":
			_ = a.Cleanup(ctx)

		case "status":
			_ = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
