package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/llm"
	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/plan"
	"github.com/carpenike/fitcoach/internal/planner"
)

// Plans handles plan generation and plan reads.
type Plans struct {
	DB       *sql.DB
	Notifier planner.Notifier // optional
	Metrics  *metrics.Manager // optional

	// Completer overrides the completion backend resolved from settings.
	Completer llm.Completer
}

type generateRequest struct {
	Preferences string `json:"preferences"`
}

func (h *Plans) completer() (llm.Completer, error) {
	if h.Completer != nil {
		return h.Completer, nil
	}
	return llm.NewCompleterFromSettings(h.DB)
}

// Generate creates a new active plan for the category in the URL.
func (h *Plans) Generate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if _, ok := categoryParam(w, r); !ok {
		return
	}

	// An empty body means no preferences.
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	completer, err := h.completer()
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			log.Errorf("handlers: build completer: %v", err)
		}
		writeJSON(w, http.StatusServiceUnavailable, planner.UserMessage(planner.ErrCompletionUnavailable))
		return
	}

	o := &planner.Orchestrator{
		Profiles:  models.ProfileStore{DB: h.DB},
		Completer: completer,
		Store:     models.PlanStore{DB: h.DB},
		Notifier:  h.Notifier,
	}
	if h.Metrics != nil {
		o.Metrics = h.Metrics
	}

	p, err := o.Generate(r.Context(), user.ID, req.Preferences, chi.URLParam(r, "category"))
	if err != nil {
		writeJSON(w, generateStatus(err), planner.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// generateStatus maps a generation failure kind to an HTTP status.
func generateStatus(err error) int {
	switch {
	case errors.Is(err, planner.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, planner.ErrProfileMissing):
		return http.StatusConflict
	case errors.Is(err, planner.ErrProfileUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, planner.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, planner.ErrCompletionUnavailable), errors.Is(err, planner.ErrInvalidPlanFormat):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// categoryParam parses the {category} URL parameter, writing a 400 on failure.
func categoryParam(w http.ResponseWriter, r *http.Request) (plan.Category, bool) {
	c, err := plan.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, planner.UserMessage(planner.ErrUnknownCategory))
		return "", false
	}
	return c, true
}

// Active returns the active plan of the category, or 404 when there is none.
func (h *Plans) Active(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}

	p, err := models.GetActivePlan(h.DB, user.ID, category)
	if err != nil {
		log.Errorf("handlers: get active %s plan for user %d: %v", category, user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not load your plan.")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "no_active_plan", "You have no active "+string(category)+" plan yet.")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List returns every plan of the category, newest first.
func (h *Plans) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}

	plans, err := models.ListPlans(h.DB, user.ID, category)
	if err != nil {
		log.Errorf("handlers: list %s plans for user %d: %v", category, user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not load your plans.")
		return
	}
	if plans == nil {
		plans = []*models.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}
