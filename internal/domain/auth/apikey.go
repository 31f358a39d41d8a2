// Package auth defines the API key identity model used to guard the HTTP
// surface. Keys are stored hashed; the plaintext never reaches this package.
package auth

import "context"

// APIKeyInfo identifies a caller whose key hash matched a stored record.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants the named scope. A key with no
// scopes is unrestricted.
func (k *APIKeyInfo) HasScope(scope string) bool {
	if len(k.Scopes) == 0 {
		return true
	}
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository looks up API keys by the HMAC hash of the presented key.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
