// Package llm provides LLM-assisted plan generation for FitCoach.
//
// The package implements a two-layer pipeline:
//  1. Context Assembly: turn a user's profile and preferences into a
//     structured document plus an advisory calorie target
//  2. Completion: send context + category prompt to a provider (or to a
//     remote generate-plan function) and return the raw plan text
//
// Validation of the returned text lives in package plan; persistence and
// error classification live in package planner.
package llm

import (
	"math"
	"strings"

	"github.com/carpenike/fitcoach/internal/models"
)

// ProfileContext is the profile data sent to the LLM.
type ProfileContext struct {
	Age                 int      `json:"age"`
	WeightKg            float64  `json:"weight_kg"`
	HeightCm            float64  `json:"height_cm"`
	Gender              string   `json:"gender"`
	Goal                string   `json:"goal"`
	ActivityLevel       string   `json:"activity_level"`
	ExperienceLevel     string   `json:"experience_level"`
	TrainingDaysPerWeek int      `json:"training_days_per_week"`
	Equipment           []string `json:"available_equipment"`
	DietaryPreferences  []string `json:"dietary_preferences"`
	BMI                 float64  `json:"bmi"`
}

// PlanContext is the structured data package embedded in the user prompt.
type PlanContext struct {
	Profile       ProfileContext `json:"profile"`
	Preferences   string         `json:"preferences"`
	CalorieTarget int            `json:"calorie_target,omitempty"`
}

// BuildPlanContext assembles the context for one generation request. The
// calorie target is included only for meal plans.
func BuildPlanContext(spec PromptSpec) *PlanContext {
	p := spec.Profile
	ctx := &PlanContext{
		Profile: ProfileContext{
			Age:                 p.Age,
			WeightKg:            p.WeightKg,
			HeightCm:            p.HeightCm,
			Gender:              p.Gender,
			Goal:                p.Goal,
			ActivityLevel:       p.ActivityLevel,
			ExperienceLevel:     p.ExperienceLevel,
			TrainingDaysPerWeek: p.TrainingDaysPerWeek,
			Equipment:           nonNil(p.Equipment),
			DietaryPreferences:  nonNil(p.DietaryPreferences),
			BMI:                 bmi(p),
		},
		Preferences: ResolvePreferences(spec.Preferences, p.Goal),
	}
	if spec.Category == CategoryMeal {
		ctx.CalorieTarget = CalorieTarget(p)
	}
	return ctx
}

var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// CalorieTarget estimates daily calories with the Mifflin-St Jeor equation,
// scaled by activity level and shifted 400 kcal for weight loss or muscle
// gain. The figure is advisory; returned plans are never checked against it.
func CalorieTarget(p *models.Profile) int {
	bmr := 10*p.WeightKg + 6.25*p.HeightCm - 5*float64(p.Age)
	if p.Gender == "male" {
		bmr += 5
	} else {
		bmr -= 161
	}

	mult, ok := activityMultipliers[p.ActivityLevel]
	if !ok {
		mult = 1.2
	}
	tdee := bmr * mult

	switch p.Goal {
	case models.GoalWeightLoss:
		tdee -= 400
	case models.GoalMuscleGain:
		tdee += 400
	}
	return int(math.Round(tdee))
}

var goalFallbacks = map[string]string{
	models.GoalWeightLoss: "Focus on sustainable fat loss while preserving muscle.",
	models.GoalMuscleGain: "Focus on building muscle with progressive overload.",
	models.GoalEndurance:  "Focus on improving cardiovascular endurance.",
	models.GoalStrength:   "Focus on increasing maximal strength on compound lifts.",
}

// ResolvePreferences returns the user's preference text, or a goal-based
// default when it is blank.
func ResolvePreferences(preferences, goal string) string {
	if s := strings.TrimSpace(preferences); s != "" {
		return s
	}
	if s, ok := goalFallbacks[goal]; ok {
		return s
	}
	return "Focus on general health and consistency."
}

func bmi(p *models.Profile) float64 {
	if p.HeightCm <= 0 {
		return 0
	}
	m := p.HeightCm / 100
	return math.Round(p.WeightKg/(m*m)*10) / 10
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
