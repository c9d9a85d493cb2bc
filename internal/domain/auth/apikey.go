package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeCatalogWrite allows creating, updating and deleting products.
const ScopeCatalogWrite = "catalog:write"

// ErrUnauthorized is returned for missing, unknown or under-scoped keys.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex-encoded HMAC-SHA256 of key under pepper. Stored
// key hashes are produced with this function.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator validates raw API keys against a Repository.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given repository and
// HMAC pepper.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate looks up the key by its hash and requires the given scope.
// Every failure is reported as ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	hash := HashKey(a.pepper, key)

	info, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// The repository matched on the hash; compare again in constant time in
	// case it returned a different row.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, ErrUnauthorized
	}
	if !info.HasScope(scope) {
		return nil, ErrUnauthorized
	}
	return info, nil
}
