package handlers

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/llm"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/plan"
)

// Error codes returned by the hosted function besides QUOTA_EXCEEDED.
const (
	functionInvalidRequest     = "INVALID_REQUEST"
	functionUnauthorized       = "UNAUTHORIZED"
	functionServiceUnavailable = "SERVICE_UNAVAILABLE"
	functionNotConfigured      = "NOT_CONFIGURED"
)

// Functions hosts the generate-plan function that llm.FunctionClient calls.
// It answers with the raw completion text or an {"error": ...} document.
type Functions struct {
	DB *sql.DB

	// Completer overrides the provider-backed service resolved from settings.
	Completer llm.Completer
}

func (h *Functions) completer() (llm.Completer, error) {
	if h.Completer != nil {
		return h.Completer, nil
	}
	return llm.NewServiceFromSettings(h.DB)
}

func writeErrorDocument(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, llm.ErrorDocument(code))
}

// FunctionOpen reports whether the hosted function serves requests without a
// bearer token. Only the mock provider is open; real providers spend quota.
func FunctionOpen(db *sql.DB) bool {
	return models.GetSetting(db, "function.token") == "" && models.GetSetting(db, "llm.provider") == "mock"
}

// authorize returns the status and error code to reject r with, or 0.
func (h *Functions) authorize(r *http.Request) (int, string) {
	token := models.GetSetting(h.DB, "function.token")
	if token == "" {
		if FunctionOpen(h.DB) {
			return 0, ""
		}
		return http.StatusServiceUnavailable, functionNotConfigured
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return http.StatusUnauthorized, functionUnauthorized
	}
	return 0, ""
}

// GeneratePlan runs one completion for the posted PromptSpec. Without
// function.token it only serves the mock provider.
func (h *Functions) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	if status, code := h.authorize(r); status != 0 {
		writeErrorDocument(w, status, code)
		return
	}

	var spec llm.PromptSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeErrorDocument(w, http.StatusBadRequest, functionInvalidRequest)
		return
	}
	spec.Category = strings.ToUpper(strings.TrimSpace(spec.Category))
	if err := spec.Validate(); err != nil {
		writeErrorDocument(w, http.StatusBadRequest, functionInvalidRequest)
		return
	}
	if err := spec.Profile.Validate(); err != nil {
		writeErrorDocument(w, http.StatusBadRequest, functionInvalidRequest)
		return
	}

	completer, err := h.completer()
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			log.Errorf("handlers: function completer: %v", err)
		}
		writeErrorDocument(w, http.StatusServiceUnavailable, functionServiceUnavailable)
		return
	}

	out, err := completer.Complete(r.Context(), spec)
	if err != nil {
		log.Warnf("handlers: function complete %s: %v", spec.Category, err)
		writeErrorDocument(w, http.StatusBadGateway, functionServiceUnavailable)
		return
	}
	if code, ok := plan.CheckServiceError(out); ok && code == llm.QuotaExceeded {
		writeErrorDocument(w, http.StatusPaymentRequired, code)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, out)
}
