package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
)

// Auth holds dependencies for session handlers.
type Auth struct {
	DB       *sql.DB
	Sessions *scs.SessionManager
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

type sessionResponse struct {
	User      userResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

func newSessionResponse(u *models.User, csrf string) sessionResponse {
	return sessionResponse{
		User:      userResponse{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin},
		CSRFToken: csrf,
	}
}

// Login authenticates a username and password and starts a session. The
// response carries the CSRF token for subsequent writes.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Username and password are required.")
		return
	}

	user, err := models.Authenticate(a.DB, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Errorf("handlers: login for %q: %v", req.Username, err)
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password.")
		return
	}

	// Renew session token to prevent fixation.
	if err := a.Sessions.RenewToken(r.Context()); err != nil {
		log.Errorf("handlers: session renew: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not start a session.")
		return
	}
	a.Sessions.Put(r.Context(), middleware.SessionUserKey, user.ID)

	writeJSON(w, http.StatusOK, newSessionResponse(user, middleware.EnsureCSRFToken(a.Sessions, r.Context())))
}

// Logout destroys the session.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Destroy(r.Context()); err != nil {
		log.Errorf("handlers: session destroy: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the signed-in user and the session's CSRF token.
func (a *Auth) Session(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, newSessionResponse(user, middleware.CSRFTokenFromContext(r.Context())))
}
