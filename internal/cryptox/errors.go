package cryptox

import "fmt"

// ErrorKind classifies crypto failures. The set is closed: decryption
// failures (including authentication-tag mismatch) must never surface as an
// unrelated crash.
type ErrorKind int

const (
	// KindBadInput means a malformed argument (short ciphertext, bad key size).
	KindBadInput ErrorKind = iota
	// KindKeyDerivation means the KDF parameters were unusable.
	KindKeyDerivation
	// KindEncrypt means sealing failed.
	KindEncrypt
	// KindDecrypt means opening failed, typically a wrong key or tampered data.
	KindDecrypt
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadInput:
		return "bad input"
	case KindKeyDerivation:
		return "key derivation"
	case KindEncrypt:
		return "encrypt"
	case KindDecrypt:
		return "decrypt"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by all cryptox operations.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cryptox: %s", e.Kind)
	}
	return fmt.Sprintf("cryptox: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
