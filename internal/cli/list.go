package cli

import (
	"context"
	"fmt"
	"log"
	"time"
)

// List prints the index: one line per entry, metadata only.
func (a *App) List(ctx context.Context) error {
	entries, err := a.service.Entries()
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "The vault is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(a.out, formatEntry(e, time.Now()))
	}
	return nil
}

// Show prompts for an entry ID and prints its decrypted payload.
func (a *App) Show(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "- Enter entry id", a.out)
	if err != nil {
		log.Println(err.Error())
		return err
	}

	env, err := a.service.Get(ctx, id)
	if err != nil {
		log.Println(err.Error())
		return err
	}

	payload, err := env.Unwrap()
	if err != nil {
		log.Println(err.Error())
		return err
	}

	fmt.Fprintf(a.out, "%s [%s]\n", env.Title, env.Type)
	for _, m := range env.Metadata {
		fmt.Fprintf(a.out, "  %s = %s\n", m.Name, m.Value)
	}
	fmt.Fprintf(a.out, "%+v\n", payload)
	return nil
}

// Cleanup runs one expiry-cleanup pass and reports the counts.
func (a *App) Cleanup(ctx context.Context) error {
	res, err := a.service.Cleanup(ctx)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Fprintf(a.out, "Cleanup: %d deleted, %d failed, %d remaining\n",
		res.Deleted, res.Failed, res.Remaining)
	if res.Remaining > 0 {
		fmt.Fprintln(a.out, "Run 'cleanup' again to continue.")
	}
	return nil
}
