package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/MrWong99/veritasvoice/internal/observe"
)

// APIKeyHeader carries the client's key on protected routes.
const APIKeyHeader = "x-api-key"

// KeyStore holds the accepted API keys. Keys can be replaced at runtime.
type KeyStore struct {
	keys atomic.Pointer[[][]byte]
}

// NewKeyStore returns a store accepting keys.
func NewKeyStore(keys ...string) *KeyStore {
	s := &KeyStore{}
	s.Set(keys)
	return s
}

// Set replaces the accepted keys. Blank entries are dropped.
func (s *KeyStore) Set(keys []string) {
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, []byte(k))
		}
	}
	s.keys.Store(&out)
}

// Len returns the number of accepted keys.
func (s *KeyStore) Len() int { return len(*s.keys.Load()) }

// Valid reports whether candidate matches an accepted key. Every key is
// compared in constant time.
func (s *KeyStore) Valid(candidate string) bool {
	c := []byte(candidate)
	match := 0
	for _, k := range *s.keys.Load() {
		match |= subtle.ConstantTimeCompare(c, k)
	}
	return match == 1
}

// RequireAPIKey rejects requests without a valid x-api-key header. A store
// with no keys is a server misconfiguration and answers 500.
func RequireAPIKey(store *KeyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := observe.Logger(c.Request.Context())
		if store.Len() == 0 {
			log.Error("rejecting request: no API key configured")
			abortError(c, http.StatusInternalServerError, msgAuth)
			return
		}
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			log.Info("rejecting request: missing api key", "remote", c.ClientIP())
			abortError(c, http.StatusUnauthorized, msgAuth)
			return
		}
		if !store.Valid(key) {
			log.Info("rejecting request: invalid api key", "remote", c.ClientIP())
			abortError(c, http.StatusUnauthorized, msgAuth)
			return
		}
		c.Next()
	}
}
