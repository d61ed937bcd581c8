package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/alexedwards/scs/v2"
)

type csrfContextKey string

// csrfTokenCtxKey is the context key for the CSRF token.
const csrfTokenCtxKey csrfContextKey = "csrf_token"

// CSRFHeader is the request header carrying the session's CSRF token.
const CSRFHeader = "X-CSRF-Token"

const csrfSessionKey = "csrf_token"

// CSRFProtect ensures the session has a CSRF token and, on state-changing
// requests (POST, PUT, DELETE, PATCH), requires it in the X-CSRF-Token
// header. Clients read the token from the login or session response.
//
// This middleware must run inside scs LoadAndSave so the session is
// available.
func CSRFProtect(sm *scs.SessionManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := EnsureCSRFToken(sm, r.Context())

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			if !csrfTokensMatch(token, r.Header.Get(CSRFHeader)) {
				WriteError(w, http.StatusForbidden, "csrf", "Invalid or missing CSRF token.")
				return
			}
		}

		ctx := context.WithValue(r.Context(), csrfTokenCtxKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// EnsureCSRFToken returns the session's CSRF token, creating one if needed.
func EnsureCSRFToken(sm *scs.SessionManager, ctx context.Context) string {
	token := sm.GetString(ctx, csrfSessionKey)
	if token == "" {
		token = generateCSRFToken()
		sm.Put(ctx, csrfSessionKey, token)
	}
	return token
}

// CSRFTokenFromContext retrieves the CSRF token from the request context.
func CSRFTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(csrfTokenCtxKey).(string)
	return s
}

// generateCSRFToken returns a 32-byte hex-encoded random string.
func generateCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: failed to generate random token: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// csrfTokensMatch compares two tokens in constant time.
func csrfTokensMatch(expected, actual string) bool {
	if expected == "" || actual == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
