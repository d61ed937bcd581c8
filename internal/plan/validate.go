package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	// MalformedJSON means the text could not be parsed as JSON at all.
	MalformedJSON ErrorKind = "malformed_json"
	// InvalidStructure means the JSON parsed but a required list or name
	// is missing.
	InvalidStructure ErrorKind = "invalid_structure"
)

// ValidationError is returned by Validate when completion output cannot be
// turned into plan content.
type ValidationError struct {
	Kind ErrorKind
	Path string // JSON path of the offending element, e.g. "days[2].meals"
	Msg  string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("plan: %s: %s: %s", e.Kind, e.Path, e.Msg)
	}
	return fmt.Sprintf("plan: %s: %s", e.Kind, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func structureErr(path, msg string) *ValidationError {
	return &ValidationError{Kind: InvalidStructure, Path: path, Msg: msg}
}

// StripFences removes Markdown code-fence wrapping (``` with an optional
// language tag) from the start and end of text.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			if tag := s[:i]; !strings.ContainsAny(tag, "{[") {
				s = s[i+1:]
			}
		} else {
			s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// CheckServiceError reports the error string of a completion service error
// document ({"error": "..."}). It must be checked before Validate so that
// service failures are not mistaken for malformed plans.
func CheckServiceError(raw string) (string, bool) {
	var doc struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal([]byte(StripFences(raw)), &doc); err != nil {
		return "", false
	}
	switch e := doc.Error.(type) {
	case string:
		if e = strings.TrimSpace(e); e != "" {
			return e, true
		}
	case map[string]any:
		if msg := firstText(e, "", "code", "message", "type"); msg != "" {
			return msg, true
		}
	}
	return "", false
}

// Validate parses completion output and normalizes it into canonical
// content for the category. Leaf fields (numbers, strings) are coerced and
// never cause rejection; missing day, exercise, meal or item lists do.
func Validate(raw string, category Category) (*Content, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("plan: unknown category %q", category)
	}

	text := StripFences(raw)
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, &ValidationError{Kind: MalformedJSON, Msg: "completion output is not valid JSON", Err: err}
	}
	if dec.More() {
		return nil, &ValidationError{Kind: MalformedJSON, Msg: "unexpected data after JSON document"}
	}

	doc, ok := parsed.(map[string]any)
	if !ok {
		return nil, structureErr("", "top-level value must be an object")
	}

	c := &Content{Category: category}
	var err *ValidationError
	switch category {
	case Workout:
		c.Workout, err = normalizeWorkout(doc)
	case Nutrition:
		c.Nutrition, err = normalizeNutrition(doc)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func normalizeWorkout(doc map[string]any) (*WorkoutContent, *ValidationError) {
	days, ok := doc["days"].([]any)
	if !ok || len(days) == 0 {
		return nil, structureErr("days", "must be a non-empty list")
	}

	out := &WorkoutContent{
		Title: firstText(doc, "Workout Plan", "title", "name"),
		Days:  make([]WorkoutDay, 0, len(days)),
	}
	for i, d := range days {
		path := fmt.Sprintf("days[%d]", i)
		dm, ok := d.(map[string]any)
		if !ok {
			return nil, structureErr(path, "must be an object")
		}
		exercises, ok := dm["exercises"].([]any)
		if !ok || len(exercises) == 0 {
			return nil, structureErr(path+".exercises", "must be a non-empty list")
		}

		day := WorkoutDay{
			DayLabel:  firstText(dm, fmt.Sprintf("Day %d", i+1), "day_label", "day", "name"),
			Focus:     firstText(dm, "", "focus"),
			Exercises: make([]Exercise, 0, len(exercises)),
		}
		for j, e := range exercises {
			exPath := fmt.Sprintf("%s.exercises[%d]", path, j)
			em, ok := e.(map[string]any)
			if !ok {
				return nil, structureErr(exPath, "must be an object")
			}
			name := toText(em["name"])
			if name == "" {
				return nil, structureErr(exPath+".name", "must be a non-empty string")
			}
			day.Exercises = append(day.Exercises, Exercise{
				Name:        name,
				Sets:        toPositiveInt(em["sets"], DefaultSets),
				Reps:        firstText(em, DefaultReps, "reps"),
				RestSeconds: restSeconds(first(em, "rest_seconds", "rest"), DefaultRestSeconds),
				Notes:       firstText(em, "", "notes"),
			})
		}
		out.Days = append(out.Days, day)
	}
	return out, nil
}

func normalizeNutrition(doc map[string]any) (*NutritionContent, *ValidationError) {
	days, ok := doc["days"].([]any)
	if !ok || len(days) == 0 {
		return nil, structureErr("days", "must be a non-empty list")
	}

	out := &NutritionContent{
		Title:          firstText(doc, "Nutrition Plan", "title", "name"),
		TargetCalories: toNumber(first(doc, "target_calories", "daily_calories")),
		Days:           make([]NutritionDay, 0, len(days)),
	}
	for i, d := range days {
		path := fmt.Sprintf("days[%d]", i)
		dm, ok := d.(map[string]any)
		if !ok {
			return nil, structureErr(path, "must be an object")
		}
		meals, ok := dm["meals"].([]any)
		if !ok || len(meals) == 0 {
			return nil, structureErr(path+".meals", "must be a non-empty list")
		}

		day := NutritionDay{
			DayLabel:      firstText(dm, fmt.Sprintf("Day %d", i+1), "day_label", "day", "name"),
			TotalCalories: toNumber(first(dm, "total_calories", "calories")),
			Meals:         make([]Meal, 0, len(meals)),
		}
		for j, m := range meals {
			meal, err := normalizeMeal(m, fmt.Sprintf("%s.meals[%d]", path, j), j)
			if err != nil {
				return nil, err
			}
			day.Meals = append(day.Meals, meal)
		}
		out.Days = append(out.Days, day)
	}
	return out, nil
}

// normalizeMeal accepts both meal shapes: nested {name, items:[...]} and
// flat {type, name, calories, ...} where the meal is itself the item.
func normalizeMeal(m any, path string, idx int) (Meal, *ValidationError) {
	mm, ok := m.(map[string]any)
	if !ok {
		return Meal{}, structureErr(path, "must be an object")
	}
	label := firstText(mm, fmt.Sprintf("Meal %d", idx+1), "type", "meal_type", "meal", "name")

	rawItems, nested := mm["items"]
	if !nested {
		name := toText(mm["name"])
		if name == "" {
			return Meal{}, structureErr(path, "must have an items list or a name")
		}
		return Meal{Label: label, Name: name, Items: []FoodItem{normalizeItem(mm, name)}}, nil
	}

	items, ok := rawItems.([]any)
	if !ok {
		return Meal{}, structureErr(path+".items", "must be a list")
	}
	meal := Meal{Label: label, Name: toText(mm["name"]), Items: make([]FoodItem, 0, len(items))}
	for k, it := range items {
		itPath := fmt.Sprintf("%s.items[%d]", path, k)
		im, ok := it.(map[string]any)
		if !ok {
			return Meal{}, structureErr(itPath, "must be an object")
		}
		name := toText(im["name"])
		if name == "" {
			return Meal{}, structureErr(itPath+".name", "must be a non-empty string")
		}
		meal.Items = append(meal.Items, normalizeItem(im, name))
	}
	return meal, nil
}

func normalizeItem(m map[string]any, name string) FoodItem {
	return FoodItem{
		Name:        name,
		Calories:    toNumber(first(m, "calories", "kcal")),
		Protein:     toNumber(first(m, "protein", "protein_g", "proteins")),
		Ingredients: toTextList(m["ingredients"]),
		Prep:        firstText(m, "", "prep", "preparation", "instructions"),
	}
}

// Defaults injected for missing or unparseable workout leaf fields.
const (
	DefaultSets        = 3
	DefaultReps        = "10"
	DefaultRestSeconds = 60
)
