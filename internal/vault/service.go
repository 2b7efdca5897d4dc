package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/vaultsync/internal/auth"
	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/models"
	"github.com/dmitrijs2005/vaultsync/internal/store"
)

// ErrNotUnlocked is returned by operations that need the master key while the
// vault is not in the Unlocked state.
var ErrNotUnlocked = errors.New("vault is not unlocked")

// ErrEntryNotFound is returned by Get for an ID absent from the index.
var ErrEntryNotFound = errors.New("entry not found")

// SnapshotCache persists the last encrypted index seen, so a device can list
// entries while the remote store is unreachable. Load returns
// (nil, "", nil) when nothing is cached.
type SnapshotCache interface {
	SaveIndexSnapshot(ctx context.Context, ciphertext []byte, hash string) error
	LoadIndexSnapshot(ctx context.Context) ([]byte, string, error)
}

// Service is the facade the presentation layer talks to. It composes the
// authentication machine with the remote store, keeps the in-memory index in
// step with the remote one, and serializes all vault operations so at most
// one store interaction sequence runs at a time.
type Service struct {
	mu      sync.Mutex
	machine *auth.Machine
	store   store.Store
	cipher  Cipher
	cleaner *Cleaner
	cache   SnapshotCache
	log     logging.Logger
	now     func() time.Time

	index     models.Index
	indexHash string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithSnapshotCache attaches a local index snapshot cache.
func WithSnapshotCache(c SnapshotCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithCipher overrides the default AES-GCM cipher.
func WithCipher(c Cipher) ServiceOption {
	return func(s *Service) { s.cipher = c }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithCleaner overrides the cleanup runner.
func WithCleaner(c *Cleaner) ServiceOption {
	return func(s *Service) { s.cleaner = c }
}

// NewService wires a Service over the given machine and store.
func NewService(machine *auth.Machine, st store.Store, log logging.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		machine: machine,
		store:   st,
		cipher:  AESGCM{},
		log:     log.With("component", "vault"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cleaner == nil {
		s.cleaner = NewCleaner(st, s.cipher, log, WithCleanerClock(func() time.Time { return s.now() }))
	}
	if s.cache != nil && s.cleaner.snapshot == nil {
		s.cleaner.snapshot = s.cache
	}
	return s
}

// Initialize resolves the authentication machine's initial state.
func (s *Service) Initialize(ctx context.Context) auth.State {
	return s.machine.Initialize(ctx)
}

// State returns the current authentication state.
func (s *Service) State() auth.State { return s.machine.Current() }

// Subscribe registers fn for authentication state transitions.
func (s *Service) Subscribe(fn func(auth.State)) (cancel func()) {
	return s.machine.Subscribe(fn)
}

// Retry re-probes a Failed machine.
func (s *Service) Retry(ctx context.Context) auth.State { return s.machine.Retry(ctx) }

// SetUp configures a fresh vault with the given PIN.
func (s *Service) SetUp(ctx context.Context, pin, confirm []byte) error {
	_, err := s.machine.SetUp(ctx, pin, confirm).Unpack()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.index, s.indexHash = models.Index{}, ""
	s.mu.Unlock()
	return nil
}

// Unlock submits the PIN and, on success, loads the index. A missing remote
// index means a fresh vault and yields an empty one. When the remote is
// unreachable, a cached snapshot is decrypted instead so the vault still
// opens for offline reads. Any other load failure locks the vault back and
// surfaces the error.
func (s *Service) Unlock(ctx context.Context, pin []byte) error {
	if _, err := s.machine.SubmitPIN(ctx, pin).Unpack(); err != nil {
		return err
	}

	key, ok := s.machine.Key()
	if !ok {
		return ErrNotUnlocked
	}

	idx, hash, err := s.loadIndex(ctx, key)
	if err != nil {
		s.machine.Lock()
		return err
	}

	s.mu.Lock()
	s.index, s.indexHash = idx, hash
	s.mu.Unlock()
	return nil
}

func (s *Service) loadIndex(ctx context.Context, key *cryptox.MasterKey) (models.Index, string, error) {
	file, err := s.store.ReadFile(ctx, store.IndexPath).Unpack()
	if err != nil {
		var serr *store.Error
		if errors.As(err, &serr) && store.IsNotFound(serr) {
			return models.Index{}, "", nil
		}
		if idx, hash, ok := s.snapshotIndex(ctx, key); ok {
			s.log.Warn(ctx, "index fetch failed, serving cached snapshot", "error", err)
			return idx, hash, nil
		}
		return models.Index{}, "", fmt.Errorf("load index: %w", err)
	}

	idx, err := s.decryptIndex(file.Content, key)
	if err != nil {
		return models.Index{}, "", err
	}
	if s.cache != nil {
		if cerr := s.cache.SaveIndexSnapshot(ctx, file.Content, file.Hash); cerr != nil {
			s.log.Warn(ctx, "caching index snapshot failed", "error", cerr)
		}
	}
	return idx, file.Hash, nil
}

func (s *Service) snapshotIndex(ctx context.Context, key *cryptox.MasterKey) (models.Index, string, bool) {
	if s.cache == nil {
		return models.Index{}, "", false
	}
	ciphertext, hash, err := s.cache.LoadIndexSnapshot(ctx)
	if err != nil || ciphertext == nil {
		return models.Index{}, "", false
	}
	idx, err := s.decryptIndex(ciphertext, key)
	if err != nil {
		return models.Index{}, "", false
	}
	return idx, hash, true
}

func (s *Service) decryptIndex(ciphertext []byte, key *cryptox.MasterKey) (models.Index, error) {
	var plaintext []byte
	err := key.Use(func(k []byte) error {
		pt, oerr := s.cipher.Open(ciphertext, k).Unpack()
		if oerr != nil {
			return oerr
		}
		plaintext = pt
		return nil
	})
	if err != nil {
		return models.Index{}, fmt.Errorf("decrypt index: %w", err)
	}
	defer cryptox.ClearBytes(plaintext)
	return models.ParseIndex(plaintext)
}

// Lock discards the master key and the in-memory index.
func (s *Service) Lock() {
	s.mu.Lock()
	s.index, s.indexHash = models.Index{}, ""
	s.mu.Unlock()
	s.machine.Lock()
}

// Entries lists the index in order. Metadata only, no secrets.
func (s *Service) Entries() ([]models.Entry, error) {
	if _, ok := s.machine.Key(); !ok {
		return nil, ErrNotUnlocked
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Entries(), nil
}

// Add encrypts env, uploads it as a new blob, and extends the index. The
// blob write is create-only under a fresh UUID so it cannot collide; the
// index upload is guarded by the last known hash so a concurrent writer on
// another device surfaces as a conflict rather than a lost update. On index
// conflict the orphaned blob is removed best-effort.
func (s *Service) Add(ctx context.Context, env models.Envelope, expiresAt *time.Time) (models.Entry, error) {
	key, ok := s.machine.Key()
	if !ok {
		return models.Entry{}, ErrNotUnlocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(env)
	if err != nil {
		return models.Entry{}, fmt.Errorf("encode entry: %w", err)
	}
	defer cryptox.ClearBytes(plaintext)

	ciphertext, err := s.seal(plaintext, key)
	if err != nil {
		return models.Entry{}, err
	}

	id := uuid.NewString()
	blobHash, werr := s.store.WriteFile(ctx, store.EntryPath(id), ciphertext, "").Unpack()
	if werr != nil {
		return models.Entry{}, fmt.Errorf("upload entry: %w", werr)
	}

	entry := models.Entry{ID: id, Label: env.Title, Hash: blobHash, ExpiresAt: expiresAt}
	next, err := s.index.Add(entry)
	if err != nil {
		return models.Entry{}, err
	}

	newHash, err := s.uploadIndex(ctx, next, key)
	if err != nil {
		// The index was never extended, so drop the orphaned blob.
		if _, derr := s.store.DeleteFile(ctx, store.EntryPath(id), blobHash).Unpack(); derr != nil {
			s.log.Warn(ctx, "orphaned blob cleanup failed", "id", id, "error", derr)
		}
		return models.Entry{}, err
	}

	s.index, s.indexHash = next, newHash
	return entry, nil
}

// Get fetches and decrypts one entry's payload.
func (s *Service) Get(ctx context.Context, id string) (models.Envelope, error) {
	key, ok := s.machine.Key()
	if !ok {
		return models.Envelope{}, ErrNotUnlocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index.Get(id)
	if !ok {
		return models.Envelope{}, ErrEntryNotFound
	}

	file, err := s.store.ReadFile(ctx, store.EntryPath(id)).Unpack()
	if err != nil {
		return models.Envelope{}, fmt.Errorf("fetch entry: %w", err)
	}
	if file.Hash != entry.Hash {
		// Another device rewrote the blob; remember the current hash so a
		// later cleanup can delete it without a lookup.
		s.index = s.index.WithHash(id, file.Hash)
	}

	var plaintext []byte
	uerr := key.Use(func(k []byte) error {
		pt, oerr := s.cipher.Open(file.Content, k).Unpack()
		if oerr != nil {
			return oerr
		}
		plaintext = pt
		return nil
	})
	if uerr != nil {
		return models.Envelope{}, fmt.Errorf("decrypt entry: %w", uerr)
	}
	defer cryptox.ClearBytes(plaintext)

	var env models.Envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return models.Envelope{}, fmt.Errorf("decode entry: %w", err)
	}
	return env, nil
}

// Cleanup runs one expiry-cleanup pass. Passes are serialized by the service
// mutex; a second caller blocks until the first pass finishes.
func (s *Service) Cleanup(ctx context.Context) (CleanupResult, error) {
	key, ok := s.machine.Key()
	if !ok {
		return CleanupResult{}, ErrNotUnlocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, idx, hash := s.cleaner.Run(ctx, s.index, s.indexHash, key)
	s.index, s.indexHash = idx, hash
	return res, nil
}

func (s *Service) seal(plaintext []byte, key *cryptox.MasterKey) ([]byte, error) {
	var ciphertext []byte
	err := key.Use(func(k []byte) error {
		ct, serr := s.cipher.Seal(plaintext, k).Unpack()
		if serr != nil {
			return serr
		}
		ciphertext = ct
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt entry: %w", err)
	}
	return ciphertext, nil
}

func (s *Service) uploadIndex(ctx context.Context, idx models.Index, key *cryptox.MasterKey) (string, error) {
	data, err := idx.Encode()
	if err != nil {
		return "", fmt.Errorf("encode index: %w", err)
	}
	ciphertext, err := s.seal(data, key)
	if err != nil {
		return "", err
	}
	hash, werr := s.store.WriteFile(ctx, store.IndexPath, ciphertext, s.indexHash).Unpack()
	if werr != nil {
		return "", fmt.Errorf("upload index: %w", werr)
	}
	if s.cache != nil {
		if cerr := s.cache.SaveIndexSnapshot(ctx, ciphertext, hash); cerr != nil {
			s.log.Warn(ctx, "caching index snapshot failed", "error", cerr)
		}
	}
	return hash, nil
}
