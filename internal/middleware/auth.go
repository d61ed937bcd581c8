package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// SessionUserKey is the session key holding the authenticated user's ID.
const SessionUserKey = "userID"

// RequireAuth rejects requests without a valid session with a JSON 401.
// It must run inside sm.LoadAndSave.
func RequireAuth(sm *scs.SessionManager, db *sql.DB, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := sm.GetInt64(r.Context(), SessionUserKey)
		if userID == 0 {
			WriteError(w, http.StatusUnauthorized, "unauthenticated", "Please sign in.")
			return
		}

		user, err := models.GetUserByID(db, userID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				log.Errorf("middleware: failed to load user %d: %v", userID, err)
			}
			if derr := sm.Destroy(r.Context()); derr != nil {
				log.Warnf("middleware: destroy session: %v", derr)
			}
			WriteError(w, http.StatusUnauthorized, "unauthenticated", "Please sign in.")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated non-admin users. Must be used after
// RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsAdmin {
			WriteError(w, http.StatusForbidden, "forbidden", "Admin access required.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext retrieves the authenticated user from the request context.
// Returns nil if no user is set (should not happen behind RequireAuth).
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// WriteError writes a {"code", "message"} JSON error body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message}); err != nil {
		log.Errorf("middleware: write error body: %v", err)
	}
}
