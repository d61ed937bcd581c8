package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/models"
)

// Completion categories as sent on the wire.
const (
	CategoryWorkout = "WORKOUT"
	CategoryMeal    = "MEAL"
)

// QuotaExceeded is the error code a completion backend reports in place of
// a plan when the account is out of quota.
const QuotaExceeded = "QUOTA_EXCEEDED"

// PromptSpec is the input to a completion: which plan to generate, for whom,
// and with which free-text preferences.
type PromptSpec struct {
	Category    string          `json:"category"`
	Profile     *models.Profile `json:"profile"`
	Preferences string          `json:"preferences"`
}

// Validate checks the spec is complete enough to build prompts.
func (s PromptSpec) Validate() error {
	if s.Category != CategoryWorkout && s.Category != CategoryMeal {
		return fmt.Errorf("llm: unknown completion category %q", s.Category)
	}
	if s.Profile == nil {
		return errors.New("llm: prompt spec has no profile")
	}
	return nil
}

// Completer turns a PromptSpec into raw plan text. The text is either a plan
// document or an {"error": "..."} document; transport failures are errors.
type Completer interface {
	Complete(ctx context.Context, spec PromptSpec) (string, error)
}

// ErrorDocument returns the {"error": code} document a backend emits instead
// of a plan.
func ErrorDocument(code string) string {
	b, _ := json.Marshal(map[string]string{"error": code})
	return string(b)
}

// Service is a Completer backed by a single LLM Provider.
type Service struct {
	Provider             Provider
	Options              Options
	SystemPromptOverride string
}

// NewService returns a Service calling p with opts.
func NewService(p Provider, opts Options) *Service {
	return &Service{Provider: p, Options: opts}
}

// Complete calls the provider exactly once. Quota errors become the
// QUOTA_EXCEEDED document so callers can tell them apart from outages.
func (s *Service) Complete(ctx context.Context, spec PromptSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	systemPrompt := s.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = buildSystemPrompt(spec.Category)
	}
	userPrompt, err := buildUserPrompt(spec)
	if err != nil {
		return "", fmt.Errorf("llm: build prompt: %w", err)
	}

	resp, err := s.Provider.Generate(ctx, systemPrompt, userPrompt, s.Options)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsQuota() {
			log.Warnf("llm: %s quota exhausted: %s", s.Provider.Name(), apiErr.Message)
			return ErrorDocument(QuotaExceeded), nil
		}
		return "", fmt.Errorf("llm: %s generate: %w", s.Provider.Name(), err)
	}

	log.WithFields(log.Fields{
		"provider": s.Provider.Name(),
		"model":    resp.Model,
		"category": spec.Category,
		"tokens":   resp.TokensUsed,
		"duration": resp.Duration,
	}).Info("llm: completion finished")
	if resp.Truncated() {
		log.Warnf("llm: %s response truncated at %d tokens", s.Provider.Name(), s.Options.MaxTokens)
	}
	return resp.Content, nil
}

func buildSystemPrompt(category string) string {
	var b strings.Builder

	b.WriteString(`You are an experienced personal trainer and registered dietitian.
You design safe, realistic plans matched to the user's profile, goal and experience.

OUTPUT FORMAT (CRITICAL)
Respond with ONE JSON object and nothing else: no markdown fences, no commentary.
All numbers must be JSON numbers, not strings with units.

`)

	switch category {
	case CategoryMeal:
		b.WriteString(`Generate a 7-day meal plan with this schema:
{
  "title": "short plan title",
  "target_calories": 2200,
  "days": [
    {
      "day_label": "Monday",
      "total_calories": 2150,
      "meals": [
        {
          "type": "Breakfast",
          "name": "Greek Yogurt Bowl",
          "calories": 450,
          "protein": 30,
          "ingredients": ["greek yogurt", "berries"],
          "prep": "one or two sentences"
        }
      ]
    }
  ]
}

RULES
1. Every day has Breakfast, Lunch, Dinner and at most two Snacks.
2. Keep each day within 100 kcal of the calorie target given in the context.
3. Respect every dietary preference; never include excluded foods.
4. Prefer simple, affordable ingredients and repeat leftovers where sensible.
`)
	default:
		b.WriteString(`Generate a weekly workout plan with this schema:
{
  "title": "short plan title",
  "days": [
    {
      "day_label": "Monday",
      "focus": "Lower body",
      "exercises": [
        {"name": "Goblet Squat", "sets": 3, "reps": "8-10", "rest_seconds": 90, "notes": "optional cue"}
      ]
    }
  ]
}

RULES
1. Include exactly training_days_per_week training days.
2. Only use exercises possible with the available equipment; with no
   equipment, use bodyweight exercises only.
3. Match volume and complexity to the experience level.
4. Order each day: compound lifts first, then accessories, then conditioning.
`)
	}
	return b.String()
}

func buildUserPrompt(spec PromptSpec) (string, error) {
	contextJSON, err := json.MarshalIndent(BuildPlanContext(spec), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CATEGORY: %s\n\n", spec.Category)
	b.WriteString("USER CONTEXT:\n")
	b.Write(contextJSON)
	b.WriteString("\n\n")

	b.WriteString("PREFERENCES:\n")
	b.WriteString(ResolvePreferences(spec.Preferences, spec.Profile.Goal))
	b.WriteString("\n\n")

	if spec.Category == CategoryMeal {
		fmt.Fprintf(&b, "Aim for about %d kcal per day.\n", CalorieTarget(spec.Profile))
	} else {
		fmt.Fprintf(&b, "Plan %d training days per week.\n", spec.Profile.TrainingDaysPerWeek)
	}
	b.WriteString("Output only the JSON object.")
	return b.String(), nil
}
