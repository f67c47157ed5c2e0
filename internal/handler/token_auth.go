package handler

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing API token")
	ErrInvalidToken = errors.New("invalid API token")
)

// TokenAuthMiddleware guards the admin surface with a static token. An
// empty token disables the check.
type TokenAuthMiddleware struct {
	token string
}

func NewTokenAuthMiddleware(token string) *TokenAuthMiddleware {
	return &TokenAuthMiddleware{token: token}
}

func (m *TokenAuthMiddleware) IsEnabled() bool {
	return m != nil && m.token != ""
}

// ExtractToken reads the token from Authorization, x-api-key or, for
// browser websocket clients, the token query parameter
func (m *TokenAuthMiddleware) ExtractToken(req *http.Request) string {
	if auth := req.Header.Get("Authorization"); auth != "" {
		if parts := strings.Fields(auth); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	if token := req.Header.Get("x-api-key"); token != "" {
		return token
	}
	return req.URL.Query().Get("token")
}

// ValidateRequest checks the request token
func (m *TokenAuthMiddleware) ValidateRequest(req *http.Request) error {
	if !m.IsEnabled() {
		return nil
	}
	token := m.ExtractToken(req)
	if token == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Wrap rejects unauthenticated requests before they reach next
func (m *TokenAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.ValidateRequest(r); err != nil {
			log.Printf("[Auth] Rejected %s %s: %v", r.Method, r.URL.Path, err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}
