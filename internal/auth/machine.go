package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/result"
	"github.com/dmitrijs2005/vaultsync/internal/store"
)

// MinPINLength is the shortest PIN accepted at setup.
const MinPINLength = 4

var errNotReady = errors.New("authentication not initialized")

// MetaCache is an optional local copy of the vault metadata, letting the
// machine reach Locked when the remote store is unreachable but the vault is
// known to exist. Load returns (nil, nil) when no copy is cached.
type MetaCache interface {
	LoadMeta(ctx context.Context) ([]byte, error)
	SaveMeta(ctx context.Context, data []byte) error
}

// Machine owns the authentication lifecycle. All transitions happen under an
// internal mutex; observers see states via Current and Subscribe.
type Machine struct {
	mu     sync.Mutex
	state  State
	meta   *Meta
	failed int

	store  store.Store
	cache  MetaCache
	policy LockoutPolicy
	log    logging.Logger
	now    func() time.Time

	subs    map[int]func(State)
	nextSub int
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithPolicy overrides the default lockout policy.
func WithPolicy(p LockoutPolicy) Option {
	return func(m *Machine) { m.policy = p }
}

// WithMetaCache attaches a local metadata cache.
func WithMetaCache(c MetaCache) Option {
	return func(m *Machine) { m.cache = c }
}

// NewMachine returns a machine in the Initializing state.
func NewMachine(st store.Store, log logging.Logger, opts ...Option) *Machine {
	m := &Machine{
		state:  Initializing{},
		store:  st,
		policy: DefaultLockoutPolicy(),
		log:    log.With("component", "auth"),
		now:    time.Now,
		subs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the active state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Key returns the master-key capability while Unlocked.
func (m *Machine) Key() (*cryptox.MasterKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.state.(Unlocked); ok {
		return u.Key, true
	}
	return nil, false
}

// Subscribe registers fn to be called on every transition. The returned
// function cancels the subscription.
func (m *Machine) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// transition swaps the state under the lock and returns a notifier to run
// after the lock is released.
func (m *Machine) transition(s State) func() {
	if u, ok := m.state.(Unlocked); ok {
		if _, still := s.(Unlocked); !still {
			u.Key.Destroy()
		}
	}
	m.state = s
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(s)
		}
	}
}

// Initialize probes for vault metadata and resolves Initializing into
// NotConfigured, Locked or Failed. Calling it in any other state returns the
// current state unchanged.
func (m *Machine) Initialize(ctx context.Context) State {
	m.mu.Lock()
	if _, ok := m.state.(Initializing); !ok {
		s := m.state
		m.mu.Unlock()
		return s
	}

	var notify func()
	file, err := m.store.ReadFile(ctx, store.MetaPath).Unpack()
	switch {
	case err == nil:
		meta, perr := ParseMeta(file.Content)
		if perr != nil {
			m.log.Error(ctx, "vault metadata unreadable", "error", perr)
			notify = m.transition(Failed{Cause: &StorageError{Err: perr}})
			break
		}
		m.meta = &meta
		m.failed = 0
		notify = m.transition(Locked{})
		if m.cache != nil {
			if cerr := m.cache.SaveMeta(ctx, file.Content); cerr != nil {
				m.log.Warn(ctx, "caching vault metadata failed", "error", cerr)
			}
		}
	default:
		var serr *store.Error
		if errors.As(err, &serr) && store.IsNotFound(serr) {
			notify = m.transition(NotConfigured{})
			break
		}
		// Remote unreachable: a cached copy still proves the vault exists.
		if meta, ok := m.cachedMeta(ctx); ok {
			m.log.Warn(ctx, "remote metadata probe failed, using cached copy", "error", err)
			m.meta = &meta
			m.failed = 0
			notify = m.transition(Locked{})
			break
		}
		m.log.Error(ctx, "vault metadata probe failed", "error", err)
		notify = m.transition(Failed{Cause: &StorageError{Err: err}})
	}

	s := m.state
	m.mu.Unlock()
	notify()
	return s
}

func (m *Machine) cachedMeta(ctx context.Context) (Meta, bool) {
	if m.cache == nil {
		return Meta{}, false
	}
	data, err := m.cache.LoadMeta(ctx)
	if err != nil || data == nil {
		return Meta{}, false
	}
	meta, err := ParseMeta(data)
	if err != nil {
		return Meta{}, false
	}
	return meta, true
}

// SetUp configures a new vault from NotConfigured: validates the PIN,
// derives the key, and writes the metadata create-only so a concurrent setup
// on another device cannot be overwritten.
func (m *Machine) SetUp(ctx context.Context, pin, confirm []byte) result.Result[result.Unit, Error] {
	m.mu.Lock()

	if _, ok := m.state.(NotConfigured); !ok {
		m.mu.Unlock()
		return result.Err[result.Unit, Error](&SetupError{Reason: "vault already configured"})
	}
	if len(pin) < MinPINLength {
		m.mu.Unlock()
		return result.Err[result.Unit, Error](&SetupError{Reason: "PIN too short"})
	}
	if subtle.ConstantTimeCompare(pin, confirm) == 0 {
		m.mu.Unlock()
		return result.Err[result.Unit, Error](&SetupError{Reason: "PINs do not match"})
	}

	params := cryptox.DefaultKDFParams()
	salt := cryptox.GenerateSalt()
	key, err := cryptox.DeriveKey(pin, salt, params).Unpack()
	if err != nil {
		m.mu.Unlock()
		return result.Err[result.Unit, Error](&KeyDerivationError{Err: err})
	}
	defer cryptox.ClearBytes(key)

	meta := Meta{
		Version:   MetaVersion,
		KDF:       params,
		Salt:      salt,
		Verifier:  cryptox.MakeVerifier(key),
		CreatedAt: m.now().UTC(),
	}
	data, err := EncodeMeta(meta)
	if err != nil {
		m.mu.Unlock()
		return result.Err[result.Unit, Error](&StorageError{Err: err})
	}
	if _, err := m.store.WriteFile(ctx, store.MetaPath, data, "").Unpack(); err != nil {
		m.mu.Unlock()
		return result.Err[result.Unit, Error](&StorageError{Err: err})
	}

	m.meta = &meta
	m.failed = 0
	notify := m.transition(Locked{})
	if m.cache != nil {
		if cerr := m.cache.SaveMeta(ctx, data); cerr != nil {
			m.log.Warn(ctx, "caching vault metadata failed", "error", cerr)
		}
	}
	m.mu.Unlock()
	notify()
	return result.Ok[result.Unit, Error](result.Unit{})
}

// SubmitPIN verifies a PIN attempt against the vault metadata.
//
// While a lockout is active the PIN is rejected outright, without a
// derivation attempt. A wrong PIN increments the failure count; once the
// policy threshold is reached, a lockout expiry is computed and surfaced.
// A correct PIN yields the Unlocked state carrying the master key.
func (m *Machine) SubmitPIN(ctx context.Context, pin []byte) result.Result[result.Unit, Error] {
	m.mu.Lock()

	locked, ok := m.state.(Locked)
	if !ok {
		var e Error
		switch m.state.(type) {
		case Unlocked:
			m.mu.Unlock()
			return result.Ok[result.Unit, Error](result.Unit{})
		case NotConfigured:
			e = &SetupError{Reason: "vault not configured"}
		default:
			e = &StorageError{Err: errNotReady}
		}
		m.mu.Unlock()
		return result.Err[result.Unit, Error](e)
	}

	now := m.now()
	if locked.LockedOut(now) {
		e := &LockedOutError{Remaining: locked.LockoutUntil.Sub(now)}
		m.mu.Unlock()
		return result.Err[result.Unit, Error](e)
	}

	key, err := cryptox.DeriveKey(pin, m.meta.Salt, m.meta.KDF).Unpack()
	if err != nil {
		// Derivation failing on valid metadata is unrecoverable.
		authErr := &KeyDerivationError{Err: err}
		notify := m.transition(Failed{Cause: authErr})
		m.mu.Unlock()
		notify()
		return result.Err[result.Unit, Error](authErr)
	}

	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), m.meta.Verifier) == 0 {
		cryptox.ClearBytes(key)
		m.failed++
		delay := m.policy.Delay(m.failed)
		if delay > 0 {
			notify := m.transition(Locked{FailedAttempts: m.failed, LockoutUntil: now.Add(delay)})
			m.mu.Unlock()
			notify()
			return result.Err[result.Unit, Error](&LockedOutError{Remaining: delay})
		}
		notify := m.transition(Locked{FailedAttempts: m.failed})
		remaining := m.policy.MaxAttempts - m.failed
		m.mu.Unlock()
		notify()
		return result.Err[result.Unit, Error](&WrongPINError{AttemptsRemaining: remaining})
	}

	mk := cryptox.NewMasterKey(key)
	cryptox.ClearBytes(key)
	m.failed = 0
	notify := m.transition(Unlocked{Key: mk})
	m.mu.Unlock()
	notify()
	return result.Ok[result.Unit, Error](result.Unit{})
}

// Lock discards the master key and returns to Locked. No-op unless Unlocked.
func (m *Machine) Lock() {
	m.mu.Lock()
	if _, ok := m.state.(Unlocked); !ok {
		m.mu.Unlock()
		return
	}
	notify := m.transition(Locked{})
	m.mu.Unlock()
	notify()
}

// Retry returns a Failed machine to Initializing and re-probes.
func (m *Machine) Retry(ctx context.Context) State {
	m.mu.Lock()
	if _, ok := m.state.(Failed); !ok {
		s := m.state
		m.mu.Unlock()
		return s
	}
	notify := m.transition(Initializing{})
	m.mu.Unlock()
	notify()
	return m.Initialize(ctx)
}
