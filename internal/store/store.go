// Package store defines the vault repository capability: a remote
// content-addressable file store with git-style semantics. Objects are read,
// written and deleted by path; every write or delete carries the content
// hash the caller last observed, and a stale hash is rejected as a conflict.
//
// Hashes are opaque to callers: a git blob SHA for the GitHub backend, an
// ETag for S3, a SHA-256 hex digest for Postgres.
package store

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/result"
)

// Well-known paths inside a vault store.
const (
	// MetaPath holds the plaintext vault metadata (salt, KDF params, verifier).
	MetaPath = "vault.json"
	// IndexPath holds the encrypted index document.
	IndexPath = "index.enc"

	dataDir   = "data"
	encSuffix = ".enc"
)

// EntryPath returns the path of an entry's encrypted blob.
func EntryPath(id string) string {
	return dataDir + "/" + id + encSuffix
}

// FileInfo describes a stored object without its content.
type FileInfo struct {
	Path string
	Hash string
	Size int64
}

// File is a stored object with its content and the hash it was read at.
type File struct {
	Path    string
	Hash    string
	Content []byte
}

// Store is the remote object-store contract consumed by the vault core.
//
// WriteFile with an empty expectedHash is create-only: it must fail with a
// conflict if the object already exists. DeleteFile and non-empty-hash
// WriteFile must fail with a conflict when the remote object's current hash
// differs from expectedHash.
type Store interface {
	GetFileInfo(ctx context.Context, path string) result.Result[FileInfo, *Error]
	ReadFile(ctx context.Context, path string) result.Result[File, *Error]
	WriteFile(ctx context.Context, path string, content []byte, expectedHash string) result.Result[string, *Error]
	DeleteFile(ctx context.Context, path string, expectedHash string) result.Result[result.Unit, *Error]
}

// ErrorKind is the closed set of store failure classes. Conflict must be
// distinguishable from NotFound and from transport failures: the cleanup
// protocol treats each differently.
type ErrorKind int

const (
	// KindNotFound means no object exists at the path.
	KindNotFound ErrorKind = iota
	// KindConflict means the supplied expected hash is stale.
	KindConflict
	// KindTransport covers network, auth and server-side failures.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by every Store operation.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether e is a not-found failure.
func IsNotFound(e *Error) bool { return e != nil && e.Kind == KindNotFound }

// IsConflict reports whether e is an optimistic-concurrency conflict.
func IsConflict(e *Error) bool { return e != nil && e.Kind == KindConflict }

func notFound(path string) *Error { return &Error{Kind: KindNotFound, Path: path} }

func conflict(path string) *Error { return &Error{Kind: KindConflict, Path: path} }

func transport(path string, err error) *Error {
	return &Error{Kind: KindTransport, Path: path, Err: err}
}
