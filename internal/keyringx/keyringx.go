// Package keyringx stores store-backend credentials (GitHub tokens, S3
// secrets) in the OS keyring so they never land in config files.
package keyringx

import (
	"github.com/zalando/go-keyring"
)

const serviceName = "vaultsync"

// SaveToken stores a credential for the named backend in the OS keyring.
func SaveToken(backend string, token string) error {
	return keyring.Set(serviceName, backend, token)
}

// GetToken retrieves the credential for the named backend.
func GetToken(backend string) (string, error) {
	return keyring.Get(serviceName, backend)
}

// DeleteToken removes the credential for the named backend.
func DeleteToken(backend string) error {
	return keyring.Delete(serviceName, backend)
}

// HasToken reports whether a credential is stored for the named backend.
func HasToken(backend string) bool {
	_, err := keyring.Get(serviceName, backend)
	return err == nil
}
