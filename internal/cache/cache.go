// Package cache is the local sqlite cache backing offline use: the vault
// metadata copy the auth machine falls back to when the remote store is
// unreachable, and the last encrypted index snapshot for offline listing.
// Everything stored here is either public metadata or ciphertext.
package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/vaultsync/internal/cache/migrations"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
)

const (
	keyVaultMeta     = "vault_meta"
	keyIndexSnapshot = "index_snapshot"
	keyIndexHash     = "index_hash"
)

// Cache is a small key/value store over sqlite.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &Cache{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) get(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (c *Cache) set(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

// LoadMeta returns the cached vault metadata document, or (nil, nil) when
// none is cached.
func (c *Cache) LoadMeta(ctx context.Context) ([]byte, error) {
	return c.get(ctx, c.db, keyVaultMeta)
}

// SaveMeta stores the vault metadata document.
func (c *Cache) SaveMeta(ctx context.Context, data []byte) error {
	return c.set(ctx, c.db, keyVaultMeta, data)
}

// SaveIndexSnapshot stores the encrypted index and its remote hash
// atomically, so a reader never sees a snapshot paired with a stale hash.
func (c *Cache) SaveIndexSnapshot(ctx context.Context, ciphertext []byte, hash string) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := c.set(ctx, tx, keyIndexSnapshot, ciphertext); err != nil {
			return err
		}
		return c.set(ctx, tx, keyIndexHash, []byte(hash))
	})
}

// LoadIndexSnapshot returns the cached encrypted index and its hash, or
// (nil, "", nil) when none is cached.
func (c *Cache) LoadIndexSnapshot(ctx context.Context) ([]byte, string, error) {
	ciphertext, err := c.get(ctx, c.db, keyIndexSnapshot)
	if err != nil || ciphertext == nil {
		return nil, "", err
	}
	hash, err := c.get(ctx, c.db, keyIndexHash)
	if err != nil {
		return nil, "", err
	}
	return ciphertext, string(hash), nil
}

// Clear drops everything cached, e.g. when the user switches vaults.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}
