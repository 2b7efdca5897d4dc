package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/models"
)

// promptCommon gathers the fields shared by every add command: the title,
// metadata pairs and an optional expiration.
func (a *App) promptCommon() (title string, md []models.Metadata, expiresAt *time.Time, err error) {
	title, err = GetSimpleText(a.reader, "- Enter title", a.out)
	if err != nil {
		return "", nil, nil, err
	}

	lines, err := GetMetadata(a.reader, a.out)
	if err != nil {
		return "", nil, nil, err
	}
	md, err = parseMetadata(lines)
	if err != nil {
		return "", nil, nil, err
	}

	ttl, err := GetSimpleText(a.reader, "- Expires after (e.g. 720h, empty for never)", a.out)
	if err != nil {
		return "", nil, nil, err
	}
	if ttl != "" {
		d, perr := time.ParseDuration(ttl)
		if perr != nil {
			return "", nil, nil, fmt.Errorf("invalid expiration %q: %w", ttl, perr)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}
	return title, md, expiresAt, nil
}

func (a *App) addEntry(ctx context.Context, t models.PayloadType, title string, md []models.Metadata, details any, expiresAt *time.Time) error {
	env, err := models.Wrap(t, title, md, details)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	entry, err := a.service.Add(ctx, env, expiresAt)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Fprintf(a.out, "Added %s (%s)\n", entry.Label, entry.ID)
	return nil
}

// AddNote adds a free-form note entry.
func (a *App) AddNote(ctx context.Context) error {
	title, md, expiresAt, err := a.promptCommon()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	text, err := GetMultiline(a.reader, "- Enter note text:", a.out)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	return a.addEntry(ctx, models.PayloadTypeNote, title, md, models.Note{Text: text}, expiresAt)
}

// AddLogin adds a credentials entry.
func (a *App) AddLogin(ctx context.Context) error {
	title, md, expiresAt, err := a.promptCommon()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	username, err := GetSimpleText(a.reader, "- Enter username", a.out)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	password, err := GetPIN(a.out, "Enter password: ")
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	url, err := GetSimpleText(a.reader, "- Enter URL", a.out)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	details := models.Login{Username: username, Password: string(password), URL: url}
	return a.addEntry(ctx, models.PayloadTypeLogin, title, md, details, expiresAt)
}

// AddCreditCard adds a payment card entry.
func (a *App) AddCreditCard(ctx context.Context) error {
	title, md, expiresAt, err := a.promptCommon()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	number, err := GetSimpleText(a.reader, "- Enter card number", a.out)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	expiration, err := GetSimpleText(a.reader, "- Enter expiration (MM/YY)", a.out)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	cvv, err := GetPIN(a.out, "Enter CVV: ")
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	holder, err := GetSimpleText(a.reader, "- Enter card holder", a.out)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	details := models.CreditCard{Number: number, Expiration: expiration, CVV: string(cvv), Holder: holder}
	return a.addEntry(ctx, models.PayloadTypeCreditCard, title, md, details, expiresAt)
}
