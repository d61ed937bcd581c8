// Package handlers implements the JSON HTTP API: sessions, profiles, plan
// generation and history, daily logs, runtime settings and the hosted
// generate-plan function.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/middleware"
)

// maxBodyBytes bounds request bodies; profiles and toggles are tiny.
const maxBodyBytes = 1 << 20

// errEmptyBody is returned by decodeJSON when the body has no content.
var errEmptyBody = errors.New("request body is empty")

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("handlers: encode response: %v", err)
	}
}

// writeError writes a {"code", "message"} body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	middleware.WriteError(w, status, code, message)
}

// decodeJSON reads a single JSON object into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
