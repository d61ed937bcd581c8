package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
)

// Profiles serves the signed-in user's profile.
type Profiles struct {
	DB *sql.DB
}

type profileRequest struct {
	Age                 int      `json:"age"`
	WeightKg            float64  `json:"weight_kg"`
	HeightCm            float64  `json:"height_cm"`
	Gender              string   `json:"gender"`
	Goal                string   `json:"goal"`
	ActivityLevel       string   `json:"activity_level"`
	ExperienceLevel     string   `json:"experience_level"`
	Equipment           []string `json:"equipment"`
	TrainingDaysPerWeek int      `json:"training_days_per_week"`
	DietaryPreferences  []string `json:"dietary_preferences"`
}

// Get returns the profile, or 404 when the user has not created one.
func (h *Profiles) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	p, err := models.GetProfile(h.DB, user.ID)
	if err != nil {
		log.Errorf("handlers: get profile for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not load your profile.")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "profile_missing", "Complete your profile first.")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update creates or replaces the profile.
func (h *Profiles) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	p, err := models.UpsertProfile(h.DB, &models.Profile{
		UserID:              user.ID,
		Age:                 req.Age,
		WeightKg:            req.WeightKg,
		HeightCm:            req.HeightCm,
		Gender:              req.Gender,
		Goal:                req.Goal,
		ActivityLevel:       req.ActivityLevel,
		ExperienceLevel:     req.ExperienceLevel,
		Equipment:           req.Equipment,
		TrainingDaysPerWeek: req.TrainingDaysPerWeek,
		DietaryPreferences:  req.DietaryPreferences,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidProfile) {
			writeError(w, http.StatusUnprocessableEntity, "invalid_profile", err.Error())
			return
		}
		log.Errorf("handlers: save profile for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "Could not save your profile.")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
