package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/cryptox"
)

// MetaVersion is the serialization version of the vault metadata document.
const MetaVersion = 1

// Meta is the plaintext vault metadata stored at store.MetaPath. It holds
// everything needed to derive and verify the master key on any device, and
// nothing secret.
type Meta struct {
	Version   int               `json:"version"`
	KDF       cryptox.KDFParams `json:"kdf"`
	Salt      []byte            `json:"salt"`
	Verifier  []byte            `json:"verifier"`
	CreatedAt time.Time         `json:"created_at"`
}

// EncodeMeta serializes vault metadata.
func EncodeMeta(m Meta) ([]byte, error) {
	return json.Marshal(m)
}

// ParseMeta deserializes vault metadata, rejecting unknown versions and
// structurally unusable documents.
func ParseMeta(data []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("parse vault metadata: %w", err)
	}
	if m.Version != MetaVersion {
		return Meta{}, fmt.Errorf("unsupported vault metadata version %d", m.Version)
	}
	if len(m.Salt) == 0 || len(m.Verifier) == 0 {
		return Meta{}, fmt.Errorf("vault metadata missing salt or verifier")
	}
	return m, nil
}
