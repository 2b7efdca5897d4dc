package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/result"
	"github.com/dmitrijs2005/vaultsync/internal/store"
)

// fakeClock lets tests move wall-clock time forward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memMetaCache is a trivial MetaCache for tests.
type memMetaCache struct {
	data []byte
	err  error
}

func (c *memMetaCache) LoadMeta(ctx context.Context) ([]byte, error) { return c.data, c.err }

func (c *memMetaCache) SaveMeta(ctx context.Context, data []byte) error {
	c.data = append([]byte(nil), data...)
	return nil
}

// fastPolicy keeps argon2 out of the hot path's way by using the default
// policy with a tiny threshold where useful.
func testMachine(t *testing.T, st store.Store, opts ...Option) (*Machine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewMachine(st, logging.NewNop(), opts...), clock
}

func setUpVault(t *testing.T, m *Machine, pin string) {
	t.Helper()
	require.IsType(t, NotConfigured{}, m.Initialize(context.Background()))
	_, err := m.SetUp(context.Background(), []byte(pin), []byte(pin)).Unpack()
	require.NoError(t, err)
	require.IsType(t, Locked{}, m.Current())
}

func TestInitialize_EmptyStoreMeansNotConfigured(t *testing.T) {
	m, _ := testMachine(t, store.NewMemory())
	require.IsType(t, NotConfigured{}, m.Initialize(context.Background()))
}

func TestInitialize_ExistingMetaMeansLocked(t *testing.T) {
	st := store.NewMemory()
	first, _ := testMachine(t, st)
	setUpVault(t, first, "1234")

	second, _ := testMachine(t, st)
	s := second.Initialize(context.Background())
	locked, ok := s.(Locked)
	require.True(t, ok)
	require.Zero(t, locked.FailedAttempts)
	require.True(t, locked.LockoutUntil.IsZero())
}

func TestInitialize_CorruptMetaIsFailed(t *testing.T) {
	st := store.NewMemory()
	st.Seed(store.MetaPath, []byte("not json"))

	m, _ := testMachine(t, st)
	s := m.Initialize(context.Background())
	failed, ok := s.(Failed)
	require.True(t, ok)
	var authErr Error
	require.ErrorAs(t, failed.Cause, &authErr)
}

func TestInitialize_UsesCachedMetaWhenRemoteDown(t *testing.T) {
	st := store.NewMemory()
	m, _ := testMachine(t, st)
	setUpVault(t, m, "1234")

	metaFile, err := st.ReadFile(context.Background(), store.MetaPath).Unpack()
	require.NoError(t, err)

	cache := &memMetaCache{data: metaFile.Content}
	m2, _ := testMachine(t, transportDownStore{}, WithMetaCache(cache))
	require.IsType(t, Locked{}, m2.Initialize(context.Background()))

	// Without a cache the same failure is terminal, and Retry re-probes.
	m3, _ := testMachine(t, transportDownStore{})
	require.IsType(t, Failed{}, m3.Initialize(context.Background()))
	require.IsType(t, Failed{}, m3.Retry(context.Background())) // still down
}

func TestSetUp_Validation(t *testing.T) {
	m, _ := testMachine(t, store.NewMemory())
	m.Initialize(context.Background())

	_, err := m.SetUp(context.Background(), []byte("12"), []byte("12")).Unpack()
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)

	_, err = m.SetUp(context.Background(), []byte("1234"), []byte("4321")).Unpack()
	require.ErrorAs(t, err, &setupErr)

	// Nothing was written.
	require.IsType(t, NotConfigured{}, m.Current())
}

func TestSetUp_CreateOnlyLosesRace(t *testing.T) {
	st := store.NewMemory()
	m, _ := testMachine(t, st)
	m.Initialize(context.Background())

	// Another device configures the vault first.
	other, _ := testMachine(t, st)
	setUpVault(t, other, "9999")

	_, err := m.SetUp(context.Background(), []byte("1234"), []byte("1234")).Unpack()
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
}

func TestSubmitPIN_CorrectPINUnlocks(t *testing.T) {
	m, _ := testMachine(t, store.NewMemory())
	setUpVault(t, m, "1234")

	_, err := m.SubmitPIN(context.Background(), []byte("1234")).Unpack()
	require.NoError(t, err)

	u, ok := m.Current().(Unlocked)
	require.True(t, ok)
	require.True(t, u.Key.Valid())

	key, ok := m.Key()
	require.True(t, ok)
	require.NoError(t, key.Use(func(b []byte) error {
		require.Len(t, b, cryptox.KeySize)
		return nil
	}))
}

func TestSubmitPIN_WrongPINCountsDown(t *testing.T) {
	m, _ := testMachine(t, store.NewMemory())
	setUpVault(t, m, "1234")

	_, err := m.SubmitPIN(context.Background(), []byte("0000")).Unpack()
	var wrong *WrongPINError
	require.ErrorAs(t, err, &wrong)
	require.Equal(t, 4, wrong.AttemptsRemaining)

	_, err = m.SubmitPIN(context.Background(), []byte("0000")).Unpack()
	require.ErrorAs(t, err, &wrong)
	require.Equal(t, 3, wrong.AttemptsRemaining)

	locked, ok := m.Current().(Locked)
	require.True(t, ok)
	require.Equal(t, 2, locked.FailedAttempts)
	require.True(t, locked.LockoutUntil.IsZero())
}

func TestSubmitPIN_LockoutAtThresholdRejectsEvenCorrectPIN(t *testing.T) {
	m, clock := testMachine(t, store.NewMemory())
	setUpVault(t, m, "1234")

	for i := 0; i < DefaultLockoutPolicy().MaxAttempts; i++ {
		_, err := m.SubmitPIN(context.Background(), []byte("0000")).Unpack()
		require.Error(t, err)
	}
	locked, ok := m.Current().(Locked)
	require.True(t, ok)
	require.False(t, locked.LockoutUntil.IsZero())
	require.True(t, locked.LockedOut(clock.Now()))

	// Correct PIN while locked out is rejected without verification.
	_, err := m.SubmitPIN(context.Background(), []byte("1234")).Unpack()
	var lockedOut *LockedOutError
	require.ErrorAs(t, err, &lockedOut)
	require.Greater(t, lockedOut.Remaining, time.Duration(0))

	// Passage of time alone clears the lockout; same correct PIN now works.
	clock.Advance(31 * time.Second)
	_, err = m.SubmitPIN(context.Background(), []byte("1234")).Unpack()
	require.NoError(t, err)
	require.IsType(t, Unlocked{}, m.Current())
}

func TestSubmitPIN_LockoutGrowsWithFurtherFailures(t *testing.T) {
	m, clock := testMachine(t, store.NewMemory())
	setUpVault(t, m, "1234")

	for i := 0; i < 5; i++ {
		m.SubmitPIN(context.Background(), []byte("0000"))
	}
	clock.Advance(31 * time.Second)

	_, err := m.SubmitPIN(context.Background(), []byte("0000")).Unpack()
	var lockedOut *LockedOutError
	require.ErrorAs(t, err, &lockedOut)
	require.Equal(t, time.Minute, lockedOut.Remaining)
}

func TestLock_DiscardsMasterKey(t *testing.T) {
	m, _ := testMachine(t, store.NewMemory())
	setUpVault(t, m, "1234")

	_, err := m.SubmitPIN(context.Background(), []byte("1234")).Unpack()
	require.NoError(t, err)
	key, ok := m.Key()
	require.True(t, ok)

	m.Lock()
	require.False(t, key.Valid(), "master key must be wiped on lock")
	locked, ok := m.Current().(Locked)
	require.True(t, ok)
	require.Zero(t, locked.FailedAttempts)

	_, ok = m.Key()
	require.False(t, ok)
}

func TestSubmitPIN_RequiresConfiguredVault(t *testing.T) {
	m, _ := testMachine(t, store.NewMemory())

	// Initializing: not ready.
	_, err := m.SubmitPIN(context.Background(), []byte("1234")).Unpack()
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)

	m.Initialize(context.Background())
	_, err = m.SubmitPIN(context.Background(), []byte("1234")).Unpack()
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
}

func TestSubscribe_SeesTransitions(t *testing.T) {
	m, _ := testMachine(t, store.NewMemory())

	var mu sync.Mutex
	var states []State
	cancel := m.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	defer cancel()

	m.Initialize(context.Background())
	_, err := m.SetUp(context.Background(), []byte("1234"), []byte("1234")).Unpack()
	require.NoError(t, err)
	_, err = m.SubmitPIN(context.Background(), []byte("1234")).Unpack()
	require.NoError(t, err)
	m.Lock()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 4)
	require.IsType(t, NotConfigured{}, states[0])
	require.IsType(t, Locked{}, states[1])
	require.IsType(t, Unlocked{}, states[2])
	require.IsType(t, Locked{}, states[3])
}

// transportDownStore fails every operation with a transport error.
type transportDownStore struct{}

func downErr(path string) *store.Error {
	return &store.Error{Kind: store.KindTransport, Path: path, Err: errors.New("network unreachable")}
}

func (transportDownStore) GetFileInfo(ctx context.Context, path string) result.Result[store.FileInfo, *store.Error] {
	return result.Err[store.FileInfo](downErr(path))
}

func (transportDownStore) ReadFile(ctx context.Context, path string) result.Result[store.File, *store.Error] {
	return result.Err[store.File](downErr(path))
}

func (transportDownStore) WriteFile(ctx context.Context, path string, content []byte, expectedHash string) result.Result[string, *store.Error] {
	return result.Err[string](downErr(path))
}

func (transportDownStore) DeleteFile(ctx context.Context, path string, expectedHash string) result.Result[result.Unit, *store.Error] {
	return result.Err[result.Unit](downErr(path))
}
