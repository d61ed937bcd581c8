package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidProfile is returned when a profile field is out of range or not
// one of the allowed values.
var ErrInvalidProfile = errors.New("invalid profile")

// Goal values.
const (
	GoalWeightLoss = "weight_loss"
	GoalMuscleGain = "muscle_gain"
	GoalEndurance  = "endurance"
	GoalStrength   = "strength"
	GoalHealth     = "health"
)

// Allowed enum values for profile fields.
var (
	Goals            = []string{GoalWeightLoss, GoalMuscleGain, GoalEndurance, GoalStrength, GoalHealth}
	Genders          = []string{"male", "female", "other"}
	ActivityLevels   = []string{"sedentary", "light", "moderate", "active", "very_active"}
	ExperienceLevels = []string{"beginner", "intermediate", "advanced"}
)

// Profile holds a user's biometrics and training preferences. It is the
// read-only input to plan generation.
type Profile struct {
	UserID              int64     `json:"user_id"`
	Age                 int       `json:"age"`
	WeightKg            float64   `json:"weight_kg"`
	HeightCm            float64   `json:"height_cm"`
	Gender              string    `json:"gender"`
	Goal                string    `json:"goal"`
	ActivityLevel       string    `json:"activity_level"`
	ExperienceLevel     string    `json:"experience_level"`
	Equipment           []string  `json:"equipment"`
	TrainingDaysPerWeek int       `json:"training_days_per_week"`
	DietaryPreferences  []string  `json:"dietary_preferences"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks field ranges and enum membership, filling defaults for
// optional enums.
func (p *Profile) Validate() error {
	if p.ActivityLevel == "" {
		p.ActivityLevel = "moderate"
	}
	if p.ExperienceLevel == "" {
		p.ExperienceLevel = "beginner"
	}
	if p.TrainingDaysPerWeek == 0 {
		p.TrainingDaysPerWeek = 3
	}

	switch {
	case p.Age < 13 || p.Age > 100:
		return fmt.Errorf("%w: age %d out of range", ErrInvalidProfile, p.Age)
	case p.WeightKg < 25 || p.WeightKg > 400:
		return fmt.Errorf("%w: weight %.1f kg out of range", ErrInvalidProfile, p.WeightKg)
	case p.HeightCm < 100 || p.HeightCm > 250:
		return fmt.Errorf("%w: height %.1f cm out of range", ErrInvalidProfile, p.HeightCm)
	case !slices.Contains(Genders, p.Gender):
		return fmt.Errorf("%w: gender %q", ErrInvalidProfile, p.Gender)
	case !slices.Contains(Goals, p.Goal):
		return fmt.Errorf("%w: goal %q", ErrInvalidProfile, p.Goal)
	case !slices.Contains(ActivityLevels, p.ActivityLevel):
		return fmt.Errorf("%w: activity level %q", ErrInvalidProfile, p.ActivityLevel)
	case !slices.Contains(ExperienceLevels, p.ExperienceLevel):
		return fmt.Errorf("%w: experience level %q", ErrInvalidProfile, p.ExperienceLevel)
	case p.TrainingDaysPerWeek < 1 || p.TrainingDaysPerWeek > 7:
		return fmt.Errorf("%w: training days %d out of range", ErrInvalidProfile, p.TrainingDaysPerWeek)
	}
	return nil
}

// UpsertProfile validates and stores a user's profile, replacing any
// existing one.
func UpsertProfile(db *sql.DB, p *Profile) (*Profile, error) {
	if err := upsertProfile(db, p); err != nil {
		return nil, err
	}
	return GetProfile(db, p.UserID)
}

func upsertProfile(ex execer, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	equipment, err := marshalStrings(p.Equipment)
	if err != nil {
		return fmt.Errorf("models: encode equipment: %w", err)
	}
	dietary, err := marshalStrings(p.DietaryPreferences)
	if err != nil {
		return fmt.Errorf("models: encode dietary preferences: %w", err)
	}

	_, err = ex.Exec(
		`INSERT INTO profiles (user_id, age, weight_kg, height_cm, gender, goal, activity_level,
		                       experience_level, equipment, training_days_per_week, dietary_preferences, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		    age = excluded.age, weight_kg = excluded.weight_kg, height_cm = excluded.height_cm,
		    gender = excluded.gender, goal = excluded.goal, activity_level = excluded.activity_level,
		    experience_level = excluded.experience_level, equipment = excluded.equipment,
		    training_days_per_week = excluded.training_days_per_week,
		    dietary_preferences = excluded.dietary_preferences, updated_at = CURRENT_TIMESTAMP`,
		p.UserID, p.Age, p.WeightKg, p.HeightCm, p.Gender, p.Goal, p.ActivityLevel,
		p.ExperienceLevel, equipment, p.TrainingDaysPerWeek, dietary,
	)
	if err != nil {
		return fmt.Errorf("models: upsert profile for user %d: %w", p.UserID, err)
	}
	return nil
}

// GetProfile returns the user's profile, or nil if none has been saved.
func GetProfile(db *sql.DB, userID int64) (*Profile, error) {
	p := &Profile{}
	var equipment, dietary string
	err := db.QueryRow(
		`SELECT user_id, age, weight_kg, height_cm, gender, goal, activity_level, experience_level,
		        equipment, training_days_per_week, dietary_preferences, updated_at
		 FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Age, &p.WeightKg, &p.HeightCm, &p.Gender, &p.Goal, &p.ActivityLevel,
		&p.ExperienceLevel, &equipment, &p.TrainingDaysPerWeek, &dietary, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No profile yet is not an error.
		}
		return nil, fmt.Errorf("models: get profile for user %d: %w", userID, err)
	}

	if p.Equipment, err = unmarshalStrings(equipment); err != nil {
		return nil, fmt.Errorf("models: decode equipment for user %d: %w", userID, err)
	}
	if p.DietaryPreferences, err = unmarshalStrings(dietary); err != nil {
		return nil, fmt.Errorf("models: decode dietary preferences for user %d: %w", userID, err)
	}
	return p, nil
}

// ProfileStore exposes profiles to the plan generator.
type ProfileStore struct {
	DB *sql.DB
}

// Get returns the user's profile or nil if none exists.
func (s ProfileStore) Get(_ context.Context, userID int64) (*Profile, error) {
	return GetProfile(s.DB, userID)
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshalStrings(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
