// Package models defines the vault index (manifest) and the typed secret
// payloads stored in entry blobs.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// IndexVersion is the serialization version of the index document.
const IndexVersion = 1

// Entry is one manifest row: metadata only, never secret material.
//
// Hash is the remote content hash of the entry's encrypted blob as last
// observed; empty when unknown. ExpiresAt nil means the entry never expires.
type Entry struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Hash      string     `json:"hash,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the entry's expiration is at or before now.
// Entries without an expiration never expire.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Index is an immutable, ordered collection of entries keyed by ID.
// Insertion order is preserved and significant: the cleanup protocol picks
// batches deterministically in index order. All "mutations" return a new
// Index, so concurrent readers of an old value stay safe.
type Index struct {
	entries []Entry
	byID    map[string]int
}

// NewIndex builds an index from entries, rejecting duplicate IDs.
func NewIndex(entries ...Entry) (Index, error) {
	byID := make(map[string]int, len(entries))
	copied := make([]Entry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return Index{}, fmt.Errorf("entry %d has empty id", i)
		}
		if _, dup := byID[e.ID]; dup {
			return Index{}, fmt.Errorf("duplicate entry id %q", e.ID)
		}
		byID[e.ID] = i
		copied[i] = e
	}
	return Index{entries: copied, byID: byID}, nil
}

// Len returns the number of entries.
func (idx Index) Len() int { return len(idx.entries) }

// Entries returns a copy of the entries in index order.
func (idx Index) Entries() []Entry {
	return append([]Entry(nil), idx.entries...)
}

// Get returns the entry with the given ID.
func (idx Index) Get(id string) (Entry, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// Expired returns the entries whose expiration is at or before now, in
// index order.
func (idx Index) Expired(now time.Time) []Entry {
	var out []Entry
	for _, e := range idx.entries {
		if e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// Remove returns a new index without the given IDs. IDs that are absent are
// ignored; the order of the remaining entries is unchanged. The receiver is
// not modified.
func (idx Index) Remove(ids ...string) Index {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]Entry, 0, len(idx.entries))
	byID := make(map[string]int, len(idx.entries))
	for _, e := range idx.entries {
		if _, gone := drop[e.ID]; gone {
			continue
		}
		byID[e.ID] = len(kept)
		kept = append(kept, e)
	}
	return Index{entries: kept, byID: byID}
}

// Add returns a new index with e appended. Fails on a duplicate ID.
func (idx Index) Add(e Entry) (Index, error) {
	if e.ID == "" {
		return Index{}, fmt.Errorf("entry has empty id")
	}
	if _, dup := idx.byID[e.ID]; dup {
		return Index{}, fmt.Errorf("duplicate entry id %q", e.ID)
	}
	entries := make([]Entry, len(idx.entries)+1)
	copy(entries, idx.entries)
	entries[len(idx.entries)] = e
	byID := make(map[string]int, len(entries))
	for i, x := range entries {
		byID[x.ID] = i
	}
	return Index{entries: entries, byID: byID}, nil
}

// WithHash returns a new index where the entry with the given ID carries
// hash. Returns the receiver unchanged if the ID is absent.
func (idx Index) WithHash(id, hash string) Index {
	i, ok := idx.byID[id]
	if !ok {
		return idx
	}
	entries := append([]Entry(nil), idx.entries...)
	entries[i].Hash = hash
	byID := make(map[string]int, len(entries))
	for j, x := range entries {
		byID[x.ID] = j
	}
	return Index{entries: entries, byID: byID}
}

type indexDoc struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Encode serializes the index to its JSON document form.
func (idx Index) Encode() ([]byte, error) {
	doc := indexDoc{Version: IndexVersion, Entries: idx.entries}
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	return json.Marshal(doc)
}

// ParseIndex deserializes an index document produced by Encode.
func ParseIndex(data []byte) (Index, error) {
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Index{}, fmt.Errorf("parse index: %w", err)
	}
	if doc.Version != IndexVersion {
		return Index{}, fmt.Errorf("unsupported index version %d", doc.Version)
	}
	return NewIndex(doc.Entries...)
}
