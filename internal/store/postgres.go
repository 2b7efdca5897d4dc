package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/result"
	"github.com/dmitrijs2005/vaultsync/internal/store/migrations"
)

// Postgres implements Store over a single vault_objects table, for
// self-hosted deployments. The content hash is a SHA-256 hex digest computed
// on write; optimistic concurrency is enforced by guarding every UPDATE and
// DELETE with the expected hash and inspecting rows affected.
type Postgres struct {
	db  *sql.DB
	log logging.Logger
}

// OpenPostgres connects via the pgx database/sql driver and applies
// migrations.
func OpenPostgres(ctx context.Context, dsn string, log logging.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgres(db, log), nil
}

// NewPostgres wraps an existing connection pool without running migrations.
func NewPostgres(db *sql.DB, log logging.Logger) *Postgres {
	return &Postgres{db: db, log: log.With("store", "postgres")}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

func (p *Postgres) GetFileInfo(ctx context.Context, path string) result.Result[FileInfo, *Error] {
	var hash string
	var size int64
	err := p.db.QueryRowContext(ctx,
		`SELECT hash, length(content) FROM vault_objects WHERE path = $1`, path).Scan(&hash, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return result.Err[FileInfo](notFound(path))
	}
	if err != nil {
		return result.Err[FileInfo](transport(path, err))
	}
	return result.Ok[FileInfo, *Error](FileInfo{Path: path, Hash: hash, Size: size})
}

func (p *Postgres) ReadFile(ctx context.Context, path string) result.Result[File, *Error] {
	var hash string
	var content []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT hash, content FROM vault_objects WHERE path = $1`, path).Scan(&hash, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return result.Err[File](notFound(path))
	}
	if err != nil {
		return result.Err[File](transport(path, err))
	}
	return result.Ok[File, *Error](File{Path: path, Hash: hash, Content: content})
}

func (p *Postgres) WriteFile(ctx context.Context, path string, content []byte, expectedHash string) result.Result[string, *Error] {
	newHash := contentHash(content)

	var res sql.Result
	var err error
	if expectedHash == "" {
		res, err = p.db.ExecContext(ctx, `
			INSERT INTO vault_objects (path, content, hash, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (path) DO NOTHING`,
			path, content, newHash)
	} else {
		res, err = p.db.ExecContext(ctx, `
			UPDATE vault_objects
			SET content = $2, hash = $3, updated_at = now()
			WHERE path = $1 AND hash = $4`,
			path, content, newHash, expectedHash)
	}
	if err != nil {
		return result.Err[string](transport(path, err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return result.Err[string](transport(path, err))
	}
	if n == 1 {
		return result.Ok[string, *Error](newHash)
	}
	if expectedHash == "" {
		// Row already present: create-only write lost the race.
		return result.Err[string](conflict(path))
	}
	return result.Err[string](p.missOrConflict(ctx, path))
}

func (p *Postgres) DeleteFile(ctx context.Context, path string, expectedHash string) result.Result[result.Unit, *Error] {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM vault_objects WHERE path = $1 AND hash = $2`, path, expectedHash)
	if err != nil {
		return result.Err[result.Unit](transport(path, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return result.Err[result.Unit](transport(path, err))
	}
	if n == 1 {
		return result.Ok[result.Unit, *Error](result.Unit{})
	}
	return result.Err[result.Unit](p.missOrConflict(ctx, path))
}

// missOrConflict decides whether a zero-rows-affected guarded statement
// means the object is gone or its hash moved on.
func (p *Postgres) missOrConflict(ctx context.Context, path string) *Error {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vault_objects WHERE path = $1)`, path).Scan(&exists)
	if err != nil {
		return transport(path, err)
	}
	if exists {
		return conflict(path)
	}
	return notFound(path)
}

var _ Store = (*Postgres)(nil)
