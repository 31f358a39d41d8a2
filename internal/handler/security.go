package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// APIKeyHeader is the request header carrying the client's API key.
const APIKeyHeader = "X-Api-Key"

// checkoutScope is the scope required to call the checkout API. Keys with an
// empty scope list pass.
const checkoutScope = "checkout"

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Middleware authenticates every request: it computes the HMAC-SHA256 of the
// provided API key, looks it up in the repository, and performs a
// constant-time comparison to prevent timing attacks.
func (s *SecurityHandler) Middleware() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			mac := hmac.New(sha256.New, s.pepper)
			mac.Write([]byte(key))
			hash := mac.Sum(nil)

			info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// The lookup already matched, but the stored hash could differ
			// from what we computed if the repository returns a stale row.
			storedBytes, err := hex.DecodeString(info.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if !info.HasScope(checkoutScope) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
