// Package cryptox implements the crypto capability of the vault core:
// PIN-based key derivation (argon2id), master-key verification, and
// authenticated encryption (AES-256-GCM) of vault payloads.
//
// The ciphertext wire format is nonce||sealed: a random 12-byte GCM nonce
// followed by the GCM output. All operations report failures as typed
// *Error values through result.Result.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/result"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the master key length (AES-256).
	KeySize = 32
	// SaltSize is the KDF salt length.
	SaltSize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
)

var errShortCiphertext = errors.New("ciphertext shorter than nonce")

// KDFParams are the argon2id cost parameters. They are persisted in the
// vault metadata so every device derives the same key.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

// DefaultKDFParams returns the parameters used for newly configured vaults.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

func (p KDFParams) validate() error {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return fmt.Errorf("invalid argon2 parameters: %+v", p)
	}
	return nil
}

// GenerateSalt returns a fresh random KDF salt.
func GenerateSalt() []byte {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return salt
}

// DeriveKey derives a master key from a PIN and salt using argon2id.
func DeriveKey(pin, salt []byte, params KDFParams) result.Result[[]byte, *Error] {
	if err := params.validate(); err != nil {
		return result.Err[[]byte](&Error{Kind: KindKeyDerivation, Err: err})
	}
	if len(salt) == 0 {
		return result.Err[[]byte](&Error{Kind: KindKeyDerivation, Err: errors.New("empty salt")})
	}
	key := argon2.IDKey(pin, salt, params.Time, params.MemoryKiB, params.Threads, KeySize)
	return result.Ok[[]byte, *Error](key)
}

// MakeVerifier returns a value safe to persist alongside the salt that
// proves knowledge of the master key without revealing it.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// Seal encrypts plaintext under key with AES-256-GCM. The returned
// ciphertext is nonce||sealed.
func Seal(plaintext, key []byte) result.Result[[]byte, *Error] {
	aesgcm, err := newGCM(key)
	if err != nil {
		return result.Err[[]byte](&Error{Kind: KindEncrypt, Err: err})
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return result.Err[[]byte](&Error{Kind: KindEncrypt, Err: err})
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aesgcm.Overhead())
	copy(out, nonce)
	out = aesgcm.Seal(out, nonce, plaintext, nil)
	return result.Ok[[]byte, *Error](out)
}

// Open decrypts a nonce||sealed ciphertext produced by Seal. A wrong key or
// tampered data yields a KindDecrypt failure.
func Open(ciphertext, key []byte) result.Result[[]byte, *Error] {
	if len(ciphertext) < NonceSize {
		return result.Err[[]byte](&Error{Kind: KindBadInput, Err: errShortCiphertext})
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return result.Err[[]byte](&Error{Kind: KindBadInput, Err: err})
	}
	plaintext, err := aesgcm.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], nil)
	if err != nil {
		return result.Err[[]byte](&Error{Kind: KindDecrypt, Err: err})
	}
	return result.Ok[[]byte, *Error](plaintext)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ClearBytes overwrites b with zeros. Use it to wipe PINs and derived keys
// as soon as they are no longer needed.
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
