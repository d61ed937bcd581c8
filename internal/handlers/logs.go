package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/dailylog"
	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/plan"
)

// Logs serves daily consumption and completion logs.
type Logs struct {
	DB      *sql.DB
	Tracker *dailylog.Tracker
}

type toggleRequest struct {
	Label    string  `json:"label"`
	Name     string  `json:"name"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
}

type toggleFailure struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Previous *dailylog.Log `json:"previous"`
}

type checklistItem struct {
	plan.Toggleable
	Checked bool `json:"checked"`
}

type checklistResponse struct {
	PlanID   int64           `json:"plan_id"`
	Category plan.Category   `json:"category"`
	Date     string          `json:"date"`
	DayIndex int             `json:"day_index"`
	Items    []checklistItem `json:"items"`
	Totals   dailylog.Totals `json:"totals"`
}

// emptyLog is the zero-state log for a day with no toggles.
func emptyLog(userID int64, date string) *dailylog.Log {
	return &dailylog.Log{UserID: userID, Date: date, Items: []dailylog.Item{}}
}

// Get returns the log for the date, or an empty log with zero totals.
func (h *Logs) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	date, err := dailylog.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "Dates must be YYYY-MM-DD.")
		return
	}

	l, err := h.Tracker.Get(r.Context(), user.ID, date)
	if err != nil {
		log.Errorf("handlers: get log for user %d on %s: %v", user.ID, date, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not load your log.")
		return
	}
	if l == nil {
		l = emptyLog(user.ID, date)
	}
	writeJSON(w, http.StatusOK, l)
}

// Toggle flips one item in the day's log. When the change cannot be saved
// the response is 503 with the pre-toggle snapshot for the client to roll
// back to.
func (h *Logs) Toggle(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req toggleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	res, err := h.Tracker.Toggle(r.Context(), user.ID, chi.URLParam(r, "date"), req.Label, dailylog.Item{
		Name:     req.Name,
		Calories: req.Calories,
		Protein:  req.Protein,
	})
	switch {
	case errors.Is(err, dailylog.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", "Dates must be YYYY-MM-DD.")
		return
	case errors.Is(err, dailylog.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, "invalid_item", "Label and name are required.")
		return
	case errors.Is(err, dailylog.ErrToggleSyncFailed):
		log.Errorf("handlers: toggle for user %d: %v", user.ID, err)
		var prev *dailylog.Log
		if res != nil {
			prev = res.Previous
		}
		writeJSON(w, http.StatusServiceUnavailable, toggleFailure{
			Code:     "toggle_sync_failed",
			Message:  "Your change could not be saved. Please try again.",
			Previous: prev,
		})
		return
	case err != nil:
		log.Errorf("handlers: toggle for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Checklist lists the items of the active plan's day for the date, each
// marked with whether it is in the day's log. The category query parameter
// defaults to nutrition.
func (h *Logs) Checklist(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	date, err := dailylog.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "Dates must be YYYY-MM-DD.")
		return
	}
	category := plan.Nutrition
	if q := r.URL.Query().Get("category"); q != "" {
		if category, err = plan.ParseCategory(q); err != nil {
			writeError(w, http.StatusBadRequest, "unknown_category", "Category must be workout or nutrition.")
			return
		}
	}

	p, err := models.GetActivePlan(h.DB, user.ID, category)
	if err != nil {
		log.Errorf("handlers: checklist plan for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not load your plan.")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "no_active_plan", "You have no active "+string(category)+" plan yet.")
		return
	}
	content, err := p.Decode()
	if err != nil {
		log.Errorf("handlers: decode plan %d: %v", p.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not load your plan.")
		return
	}

	l, err := h.Tracker.Get(r.Context(), user.ID, date)
	if err != nil {
		log.Errorf("handlers: checklist log for user %d on %s: %v", user.ID, date, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not load your log.")
		return
	}

	day, _ := time.Parse(dailylog.DateLayout, date)
	idx := content.DayIndexFor(day)
	resp := checklistResponse{PlanID: p.ID, Category: category, Date: date, DayIndex: idx, Items: []checklistItem{}}
	for _, t := range content.Toggleables(idx) {
		resp.Items = append(resp.Items, checklistItem{
			Toggleable: t,
			Checked:    l.Has(dailylog.Key{Label: t.Label, Name: t.Name}),
		})
	}
	if l != nil {
		resp.Totals = l.Totals
	}
	writeJSON(w, http.StatusOK, resp)
}
