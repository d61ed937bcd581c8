// Package plan defines the canonical workout and nutrition plan content and
// the validator that turns untrusted completion output into it.
//
// Completion output is normalized exactly once, at Validate. Everything
// downstream (store, log tracker, API) works with the canonical shapes below
// and never re-detects which JSON shape a model produced.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category is the kind of plan: workout or nutrition.
type Category string

const (
	Workout   Category = "workout"
	Nutrition Category = "nutrition"
)

// ParseCategory parses a category name (case-insensitive). "meal" and
// "meals" are accepted as aliases for nutrition.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "workout", "workouts":
		return Workout, nil
	case "nutrition", "meal", "meals":
		return Nutrition, nil
	default:
		return "", fmt.Errorf("plan: unknown category %q", s)
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == Workout || c == Nutrition
}

// CompletionKind returns the category name used on the completion service
// wire ("WORKOUT" or "MEAL").
func (c Category) CompletionKind() string {
	if c == Nutrition {
		return "MEAL"
	}
	return "WORKOUT"
}

// WorkoutContent is the canonical workout plan.
type WorkoutContent struct {
	Title string       `json:"title"`
	Days  []WorkoutDay `json:"days"`
}

// WorkoutDay is one training day of a workout plan.
type WorkoutDay struct {
	DayLabel  string     `json:"day_label"`
	Focus     string     `json:"focus,omitempty"`
	Exercises []Exercise `json:"exercises"`
}

// Exercise is a single prescribed exercise.
type Exercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	RestSeconds int    `json:"rest_seconds"`
	Notes       string `json:"notes,omitempty"`
}

// NutritionContent is the canonical nutrition plan.
type NutritionContent struct {
	Title          string         `json:"title"`
	TargetCalories float64        `json:"target_calories,omitempty"`
	Days           []NutritionDay `json:"days"`
}

// NutritionDay is one day of a nutrition plan.
type NutritionDay struct {
	DayLabel      string  `json:"day_label"`
	TotalCalories float64 `json:"total_calories,omitempty"`
	Meals         []Meal  `json:"meals"`
}

// Calories sums item calories across the day's meals.
func (d NutritionDay) Calories() float64 {
	var total float64
	for _, m := range d.Meals {
		total += m.Calories()
	}
	return total
}

// Meal groups food items under a label such as "Breakfast". Flat meals from
// the legacy shape become a meal with a single item of the same name.
type Meal struct {
	Label string     `json:"type"`
	Name  string     `json:"name,omitempty"`
	Items []FoodItem `json:"items"`
}

// Calories sums the calories of the meal's items.
func (m Meal) Calories() float64 {
	var total float64
	for _, it := range m.Items {
		total += it.Calories
	}
	return total
}

// Protein sums the protein grams of the meal's items.
func (m Meal) Protein() float64 {
	var total float64
	for _, it := range m.Items {
		total += it.Protein
	}
	return total
}

// FoodItem is a single consumable item.
type FoodItem struct {
	Name        string   `json:"name"`
	Calories    float64  `json:"calories"`
	Protein     float64  `json:"protein"`
	Ingredients []string `json:"ingredients"`
	Prep        string   `json:"prep,omitempty"`
}

// Content is validated plan content for either category. Exactly one of
// Workout and Nutrition is set, matching Category.
type Content struct {
	Category  Category
	Workout   *WorkoutContent
	Nutrition *NutritionContent
}

// Title returns the plan title.
func (c *Content) Title() string {
	switch {
	case c.Workout != nil:
		return c.Workout.Title
	case c.Nutrition != nil:
		return c.Nutrition.Title
	}
	return ""
}

// DayCount returns the number of days in the plan.
func (c *Content) DayCount() int {
	switch {
	case c.Workout != nil:
		return len(c.Workout.Days)
	case c.Nutrition != nil:
		return len(c.Nutrition.Days)
	}
	return 0
}

// MarshalJSON encodes the category-specific content.
func (c *Content) MarshalJSON() ([]byte, error) {
	switch {
	case c.Workout != nil:
		return json.Marshal(c.Workout)
	case c.Nutrition != nil:
		return json.Marshal(c.Nutrition)
	}
	return nil, fmt.Errorf("plan: empty content")
}

// Decode reads canonical content previously produced by Validate.
func Decode(category Category, data []byte) (*Content, error) {
	c := &Content{Category: category}
	switch category {
	case Workout:
		c.Workout = &WorkoutContent{}
		if err := json.Unmarshal(data, c.Workout); err != nil {
			return nil, fmt.Errorf("plan: decode workout content: %w", err)
		}
	case Nutrition:
		c.Nutrition = &NutritionContent{}
		if err := json.Unmarshal(data, c.Nutrition); err != nil {
			return nil, fmt.Errorf("plan: decode nutrition content: %w", err)
		}
	default:
		return nil, fmt.Errorf("plan: unknown category %q", category)
	}
	return c, nil
}

// DayIndexFor maps a calendar date to a plan day: Monday is index 0 and the
// weekday index wraps modulo the number of plan days. A plan shorter than
// seven days therefore repeats within the week.
func (c *Content) DayIndexFor(date time.Time) int {
	n := c.DayCount()
	if n == 0 {
		return -1
	}
	weekday := (int(date.Weekday()) + 6) % 7
	return weekday % n
}

// Toggleable is a plan item that can be marked consumed or completed in a
// daily log. Label is the meal type or the workout day label.
type Toggleable struct {
	Label    string  `json:"label"`
	Name     string  `json:"name"`
	Calories float64 `json:"calories,omitempty"`
	Protein  float64 `json:"protein,omitempty"`
}

// Toggleables lists the items of one plan day in display order. It returns
// nil when dayIndex is out of range.
func (c *Content) Toggleables(dayIndex int) []Toggleable {
	if dayIndex < 0 || dayIndex >= c.DayCount() {
		return nil
	}

	var out []Toggleable
	switch {
	case c.Workout != nil:
		day := c.Workout.Days[dayIndex]
		for _, ex := range day.Exercises {
			out = append(out, Toggleable{Label: day.DayLabel, Name: ex.Name})
		}
	case c.Nutrition != nil:
		for _, meal := range c.Nutrition.Days[dayIndex].Meals {
			for _, it := range meal.Items {
				out = append(out, Toggleable{
					Label:    meal.Label,
					Name:     it.Name,
					Calories: it.Calories,
					Protein:  it.Protein,
				})
			}
		}
	}
	return out
}
