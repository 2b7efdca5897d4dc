// Package vault contains the vault service consumed by the presentation
// layer and the expiry-cleanup protocol that reconciles the index with the
// remote store.
package vault

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/models"
	"github.com/dmitrijs2005/vaultsync/internal/result"
	"github.com/dmitrijs2005/vaultsync/internal/store"
)

// DefaultCleanupBatchSize caps how many expired entries one cleanup pass
// touches, keeping a single invocation under remote API rate limits.
const DefaultCleanupBatchSize = 50

// CleanupResult summarizes one cleanup invocation.
type CleanupResult struct {
	// Deleted counts entries whose remote blob is confirmed gone, whether
	// removed by this pass or found already absent.
	Deleted int
	// Failed counts entries whose deletion failed; they stay in the index
	// for the next pass.
	Failed int
	// Remaining counts expired entries beyond the batch cap, untouched this
	// pass.
	Remaining int
}

// Cipher is the encryption capability the cleanup protocol needs to rewrite
// the index.
type Cipher interface {
	Seal(plaintext, key []byte) result.Result[[]byte, *cryptox.Error]
	Open(ciphertext, key []byte) result.Result[[]byte, *cryptox.Error]
}

// AESGCM is the production Cipher backed by cryptox.
type AESGCM struct{}

func (AESGCM) Seal(plaintext, key []byte) result.Result[[]byte, *cryptox.Error] {
	return cryptox.Seal(plaintext, key)
}

func (AESGCM) Open(ciphertext, key []byte) result.Result[[]byte, *cryptox.Error] {
	return cryptox.Open(ciphertext, key)
}

// Cleaner runs the expiry-cleanup protocol. The protocol is deliberately
// non-transactional: the remote store offers no multi-object transactions,
// so correctness comes from idempotent deletes (an absent object counts as
// deleted) and self-healing index reconciliation on later passes. A run is
// always safe to re-invoke.
type Cleaner struct {
	store     store.Store
	cipher    Cipher
	log       logging.Logger
	snapshot  SnapshotCache
	batchSize int
	now       func() time.Time
}

// CleanerOption customizes a Cleaner.
type CleanerOption func(*Cleaner)

// WithBatchSize overrides the batch cap.
func WithBatchSize(n int) CleanerOption {
	return func(c *Cleaner) { c.batchSize = n }
}

// WithCleanerClock injects a clock, for tests.
func WithCleanerClock(now func() time.Time) CleanerOption {
	return func(c *Cleaner) { c.now = now }
}

// WithCleanerSnapshot refreshes the local index snapshot after every
// successful index upload, so an offline unlock does not resurrect entries a
// cleanup pass already purged.
func WithCleanerSnapshot(cache SnapshotCache) CleanerOption {
	return func(c *Cleaner) { c.snapshot = cache }
}

// NewCleaner constructs a Cleaner over the given store and cipher.
func NewCleaner(st store.Store, cipher Cipher, log logging.Logger, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		store:     st,
		cipher:    cipher,
		log:       log.With("component", "cleanup"),
		batchSize: DefaultCleanupBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one cleanup pass over idx, whose encrypted form was last read
// or written at indexHash. It returns the result counts plus the index and
// hash the caller should carry forward: unchanged when nothing was uploaded,
// the post-removal index and its new hash after a successful upload.
//
// Entries are processed strictly sequentially to bound concurrent API usage.
// Per-entry failures are counted, never propagated. A failed index upload
// after successful deletions is logged and absorbed: the deleted blobs stay
// deleted, and the stale index self-corrects on the next pass because an
// absent blob counts as deleted.
func (c *Cleaner) Run(ctx context.Context, idx models.Index, indexHash string, key *cryptox.MasterKey) (CleanupResult, models.Index, string) {
	expired := idx.Expired(c.now())
	if len(expired) == 0 {
		return CleanupResult{}, idx, indexHash
	}

	batch := expired
	if len(batch) > c.batchSize {
		batch = batch[:c.batchSize]
	}
	remaining := len(expired) - len(batch)

	deletedIDs := make([]string, 0, len(batch))
	failed := 0
	for _, entry := range batch {
		if c.deleteEntry(ctx, entry) {
			deletedIDs = append(deletedIDs, entry.ID)
		} else {
			failed++
		}
	}

	newIdx, newHash := idx, indexHash
	if len(deletedIDs) > 0 {
		pruned := idx.Remove(deletedIDs...)
		if h, ok := c.uploadIndex(ctx, pruned, indexHash, key); ok {
			newIdx, newHash = pruned, h
		}
		// On upload failure the caller keeps the pre-removal index and
		// hash, so the next pass retries and reconciles.
	}

	res := CleanupResult{Deleted: len(deletedIDs), Failed: failed, Remaining: remaining}
	c.log.Info(ctx, "cleanup pass finished",
		"deleted", res.Deleted, "failed", res.Failed, "remaining", res.Remaining)
	return res, newIdx, newHash
}

// deleteEntry removes one expired entry's remote blob. It reports true when
// the blob is confirmed gone: deleted by us, or already absent. Failures of
// any kind, including panics from a misbehaving store, count as false and
// never abort the batch.
func (c *Cleaner) deleteEntry(ctx context.Context, entry models.Entry) (deleted bool) {
	defer func() {
		if p := recover(); p != nil {
			c.log.Error(ctx, "panic while deleting entry", "id", entry.ID, "panic", p)
			deleted = false
		}
	}()

	path := store.EntryPath(entry.ID)
	hash := entry.Hash
	if hash == "" {
		info, err := c.store.GetFileInfo(ctx, path).Unpack()
		if err != nil {
			if isNotFound(err) {
				// Already gone, e.g. deleted by a pass whose index upload
				// was lost. Absence is success.
				c.log.Debug(ctx, "expired entry already absent", "id", entry.ID)
				return true
			}
			c.log.Warn(ctx, "hash lookup failed", "id", entry.ID, "error", err)
			return false
		}
		hash = info.Hash
	}

	if _, err := c.store.DeleteFile(ctx, path, hash).Unpack(); err != nil {
		if isNotFound(err) {
			return true
		}
		c.log.Warn(ctx, "delete failed", "id", entry.ID, "error", err)
		return false
	}
	return true
}

func (c *Cleaner) uploadIndex(ctx context.Context, idx models.Index, expectedHash string, key *cryptox.MasterKey) (string, bool) {
	data, err := idx.Encode()
	if err != nil {
		c.log.Error(ctx, "index serialization failed", "error", err)
		return "", false
	}

	var ciphertext []byte
	err = key.Use(func(k []byte) error {
		ct, serr := c.cipher.Seal(data, k).Unpack()
		if serr != nil {
			return serr
		}
		ciphertext = ct
		return nil
	})
	if err != nil {
		c.log.Error(ctx, "index encryption failed", "error", err)
		return "", false
	}

	newHash, err := c.store.WriteFile(ctx, store.IndexPath, ciphertext, expectedHash).Unpack()
	if err != nil {
		c.log.Warn(ctx, "index upload failed, deletions stand and the next pass reconciles",
			"error", err)
		return "", false
	}
	if c.snapshot != nil {
		if cerr := c.snapshot.SaveIndexSnapshot(ctx, ciphertext, newHash); cerr != nil {
			c.log.Warn(ctx, "caching index snapshot failed", "error", cerr)
		}
	}
	return newHash, true
}

func isNotFound(err error) bool {
	var serr *store.Error
	return errors.As(err, &serr) && store.IsNotFound(serr)
}
