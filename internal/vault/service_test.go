package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/auth"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/models"
	"github.com/dmitrijs2005/vaultsync/internal/result"
	"github.com/dmitrijs2005/vaultsync/internal/store"
)

func newTestService(t *testing.T, st store.Store, opts ...ServiceOption) *Service {
	t.Helper()
	machine := auth.NewMachine(st, logging.NewNop())
	return NewService(machine, st, logging.NewNop(), opts...)
}

func setUpAndUnlock(t *testing.T, svc *Service, pin string) {
	t.Helper()
	require.IsType(t, auth.NotConfigured{}, svc.Initialize(context.Background()))
	require.NoError(t, svc.SetUp(context.Background(), []byte(pin), []byte(pin)))
	require.NoError(t, svc.Unlock(context.Background(), []byte(pin)))
}

func loginEnvelope(t *testing.T, title string) models.Envelope {
	t.Helper()
	env, err := models.Wrap(models.PayloadTypeLogin, title, nil, models.Login{
		Username: "sam",
		Password: "hunter2",
		URL:      "https://example.com",
	})
	require.NoError(t, err)
	return env
}

func TestService_SetupUnlockEmptyVault(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	setUpAndUnlock(t, svc, "1234")

	entries, err := svc.Entries()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestService_AddGetRoundTrip(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	setUpAndUnlock(t, svc, "1234")

	entry, err := svc.Add(context.Background(), loginEnvelope(t, "example login"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	require.Equal(t, "example login", entry.Label)
	require.NotEmpty(t, entry.Hash)
	require.Nil(t, entry.ExpiresAt)

	got, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	payload, err := got.Unwrap()
	require.NoError(t, err)
	require.Equal(t, models.Login{Username: "sam", Password: "hunter2", URL: "https://example.com"}, payload)
}

func TestService_EntriesPersistAcrossSessions(t *testing.T) {
	st := store.NewMemory()
	first := newTestService(t, st)
	setUpAndUnlock(t, first, "1234")
	added, err := first.Add(context.Background(), loginEnvelope(t, "shared"), nil)
	require.NoError(t, err)
	first.Lock()

	second := newTestService(t, st)
	require.IsType(t, auth.Locked{}, second.Initialize(context.Background()))
	require.NoError(t, second.Unlock(context.Background(), []byte("1234")))

	entries, err := second.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, added.ID, entries[0].ID)

	_, err = second.Get(context.Background(), added.ID)
	require.NoError(t, err)
}

func TestService_OperationsRequireUnlock(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	svc.Initialize(context.Background())
	require.NoError(t, svc.SetUp(context.Background(), []byte("1234"), []byte("1234")))

	_, err := svc.Entries()
	require.ErrorIs(t, err, ErrNotUnlocked)
	_, err = svc.Add(context.Background(), loginEnvelope(t, "x"), nil)
	require.ErrorIs(t, err, ErrNotUnlocked)
	_, err = svc.Get(context.Background(), "some-id")
	require.ErrorIs(t, err, ErrNotUnlocked)
	_, err = svc.Cleanup(context.Background())
	require.ErrorIs(t, err, ErrNotUnlocked)
}

func TestService_UnlockWrongPIN(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	svc.Initialize(context.Background())
	require.NoError(t, svc.SetUp(context.Background(), []byte("1234"), []byte("1234")))

	err := svc.Unlock(context.Background(), []byte("0000"))
	var wrong *auth.WrongPINError
	require.ErrorAs(t, err, &wrong)
	require.IsType(t, auth.Locked{}, svc.State())
}

func TestService_GetUnknownID(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	setUpAndUnlock(t, svc, "1234")

	_, err := svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestService_CleanupRemovesExpiredEntries(t *testing.T) {
	st := store.NewMemory()
	svc := newTestService(t, st)
	setUpAndUnlock(t, svc, "1234")

	past := time.Now().Add(-time.Hour)
	stale, err := svc.Add(context.Background(), loginEnvelope(t, "stale"), &past)
	require.NoError(t, err)
	future := time.Now().Add(time.Hour)
	fresh, err := svc.Add(context.Background(), loginEnvelope(t, "fresh"), &future)
	require.NoError(t, err)

	res, err := svc.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, CleanupResult{Deleted: 1}, res)

	entries, err := svc.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, fresh.ID, entries[0].ID)

	// The stale blob is gone remotely too.
	_, rerr := st.ReadFile(context.Background(), store.EntryPath(stale.ID)).Unpack()
	require.True(t, isNotFound(rerr))

	// Idempotent: a second pass finds nothing to do.
	res, err = svc.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, CleanupResult{}, res)
}

func TestService_LockDropsIndexAndKey(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	setUpAndUnlock(t, svc, "1234")
	_, err := svc.Add(context.Background(), loginEnvelope(t, "x"), nil)
	require.NoError(t, err)

	svc.Lock()
	require.IsType(t, auth.Locked{}, svc.State())
	_, err = svc.Entries()
	require.ErrorIs(t, err, ErrNotUnlocked)

	// Unlocking again reloads the index from the store.
	require.NoError(t, svc.Unlock(context.Background(), []byte("1234")))
	entries, err := svc.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestService_AddIndexConflictRemovesOrphanBlob(t *testing.T) {
	st := store.NewMemory()
	stale := newTestService(t, st)
	setUpAndUnlock(t, stale, "1234")

	// Another device extends the index first; this session's hash is stale.
	other := newTestService(t, st)
	require.IsType(t, auth.Locked{}, other.Initialize(context.Background()))
	require.NoError(t, other.Unlock(context.Background(), []byte("1234")))
	_, err := other.Add(context.Background(), loginEnvelope(t, "winner"), nil)
	require.NoError(t, err)

	before := st.Calls().Delete
	_, err = stale.Add(context.Background(), loginEnvelope(t, "loser"), nil)
	require.Error(t, err)
	require.Equal(t, before+1, st.Calls().Delete, "orphaned blob is removed")

	// The winner's entry is intact.
	entries, err := other.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// memSnapshotCache is an in-memory SnapshotCache.
type memSnapshotCache struct {
	ciphertext []byte
	hash       string
}

func (c *memSnapshotCache) SaveIndexSnapshot(ctx context.Context, ciphertext []byte, hash string) error {
	c.ciphertext = append([]byte(nil), ciphertext...)
	c.hash = hash
	return nil
}

func (c *memSnapshotCache) LoadIndexSnapshot(ctx context.Context) ([]byte, string, error) {
	return c.ciphertext, c.hash, nil
}

// indexDownStore serves everything from Memory except reads of the index,
// which fail with a transport error.
type indexDownStore struct {
	*store.Memory
}

func (s indexDownStore) ReadFile(ctx context.Context, path string) result.Result[store.File, *store.Error] {
	if path == store.IndexPath {
		return result.Err[store.File](&store.Error{Kind: store.KindTransport, Path: path, Err: context.DeadlineExceeded})
	}
	return s.Memory.ReadFile(ctx, path)
}

func TestService_UnlockServesCachedSnapshotWhenIndexUnreachable(t *testing.T) {
	mem := store.NewMemory()
	cache := &memSnapshotCache{}

	online := newTestService(t, mem, WithSnapshotCache(cache))
	setUpAndUnlock(t, online, "1234")
	added, err := online.Add(context.Background(), loginEnvelope(t, "cached"), nil)
	require.NoError(t, err)
	online.Lock()

	down := indexDownStore{Memory: mem}
	offline := newTestService(t, down, WithSnapshotCache(cache))
	require.IsType(t, auth.Locked{}, offline.Initialize(context.Background()))
	require.NoError(t, offline.Unlock(context.Background(), []byte("1234")))

	entries, err := offline.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, added.ID, entries[0].ID)
}

func TestService_CleanupRefreshesSnapshotForOfflineUnlock(t *testing.T) {
	mem := store.NewMemory()
	cache := &memSnapshotCache{}

	online := newTestService(t, mem, WithSnapshotCache(cache))
	setUpAndUnlock(t, online, "1234")
	past := time.Now().Add(-time.Hour)
	_, err := online.Add(context.Background(), loginEnvelope(t, "stale"), &past)
	require.NoError(t, err)
	fresh, err := online.Add(context.Background(), loginEnvelope(t, "fresh"), nil)
	require.NoError(t, err)

	res, err := online.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, CleanupResult{Deleted: 1}, res)
	online.Lock()

	// Offline unlock serves the snapshot; the purged entry must not be in it.
	down := indexDownStore{Memory: mem}
	offline := newTestService(t, down, WithSnapshotCache(cache))
	require.IsType(t, auth.Locked{}, offline.Initialize(context.Background()))
	require.NoError(t, offline.Unlock(context.Background(), []byte("1234")))

	entries, err := offline.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, fresh.ID, entries[0].ID)
}

func TestService_UnlockFailsOnUnreachableIndexWithoutSnapshot(t *testing.T) {
	mem := store.NewMemory()
	bootstrap := newTestService(t, mem)
	setUpAndUnlock(t, bootstrap, "1234")
	_, err := bootstrap.Add(context.Background(), loginEnvelope(t, "x"), nil)
	require.NoError(t, err)
	bootstrap.Lock()

	down := indexDownStore{Memory: mem}
	svc := newTestService(t, down)
	require.IsType(t, auth.Locked{}, svc.Initialize(context.Background()))
	require.Error(t, svc.Unlock(context.Background(), []byte("1234")))

	// The machine was locked back, not left open with no index.
	require.IsType(t, auth.Locked{}, svc.State())
}
