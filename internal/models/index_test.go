package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tp(t time.Time) *time.Time { return &t }

func TestNewIndex_RejectsDuplicatesAndEmptyIDs(t *testing.T) {
	_, err := NewIndex(Entry{ID: "a"}, Entry{ID: "a"})
	require.Error(t, err)

	_, err = NewIndex(Entry{ID: ""})
	require.Error(t, err)
}

func TestIndex_Expired(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	idx, err := NewIndex(
		Entry{ID: "past", ExpiresAt: tp(now.Add(-time.Hour))},
		Entry{ID: "exact", ExpiresAt: tp(now)},
		Entry{ID: "future", ExpiresAt: tp(now.Add(time.Hour))},
		Entry{ID: "never"},
	)
	require.NoError(t, err)

	expired := idx.Expired(now)
	require.Len(t, expired, 2)
	// Index order preserved.
	require.Equal(t, "past", expired[0].ID)
	require.Equal(t, "exact", expired[1].ID)
}

func TestIndex_RemoveIsPure(t *testing.T) {
	idx, err := NewIndex(Entry{ID: "a"}, Entry{ID: "b"}, Entry{ID: "c"})
	require.NoError(t, err)

	out := idx.Remove("b", "zzz")

	// Original untouched and still queryable.
	require.Equal(t, 3, idx.Len())
	_, ok := idx.Get("b")
	require.True(t, ok)

	// New index excludes exactly the removed existing IDs, order unchanged.
	require.Equal(t, 2, out.Len())
	entries := out.Entries()
	require.Equal(t, "a", entries[0].ID)
	require.Equal(t, "c", entries[1].ID)
	_, ok = out.Get("b")
	require.False(t, ok)
}

func TestIndex_AddIsPure(t *testing.T) {
	idx, err := NewIndex(Entry{ID: "a"})
	require.NoError(t, err)

	out, err := idx.Add(Entry{ID: "b", Label: "second"})
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())
	require.Equal(t, 2, out.Len())

	_, err = out.Add(Entry{ID: "a"})
	require.Error(t, err)
}

func TestIndex_WithHash(t *testing.T) {
	idx, err := NewIndex(Entry{ID: "a"}, Entry{ID: "b"})
	require.NoError(t, err)

	out := idx.WithHash("a", "h1")
	got, ok := out.Get("a")
	require.True(t, ok)
	require.Equal(t, "h1", got.Hash)

	// Receiver unchanged.
	orig, _ := idx.Get("a")
	require.Empty(t, orig.Hash)

	// Unknown ID returns the index unchanged.
	same := idx.WithHash("nope", "h")
	require.Equal(t, idx.Entries(), same.Entries())
}

func TestIndex_EncodeParseRoundTrip(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	idx, err := NewIndex(
		Entry{ID: "a", Label: "alpha", Hash: "h1", ExpiresAt: &exp},
		Entry{ID: "b", Label: "beta"},
	)
	require.NoError(t, err)

	data, err := idx.Encode()
	require.NoError(t, err)

	parsed, err := ParseIndex(data)
	require.NoError(t, err)
	require.Equal(t, idx.Entries(), parsed.Entries())
}

func TestParseIndex_RejectsUnknownVersion(t *testing.T) {
	_, err := ParseIndex([]byte(`{"version":99,"entries":[]}`))
	require.Error(t, err)
}

func TestEncode_EmptyIndexHasEntriesArray(t *testing.T) {
	data, err := Index{}.Encode()
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1,"entries":[]}`, string(data))
}
