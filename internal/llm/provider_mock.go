package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockProvider implements Provider for testing and local development. It
// returns FixedContent, or the result of ContentFor when set, and records
// every prompt it receives.
type MockProvider struct {
	FixedContent string
	ContentFor   func(systemPrompt, userPrompt string) string
	StopReason   string
	PingErr      error
	GenerateErr  error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded Generate invocation.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
	Options      Options
}

// NewMockProvider creates a mock provider with a canned response.
func NewMockProvider(content string) *MockProvider {
	return &MockProvider{FixedContent: content}
}

// NewSampleProvider returns a mock that answers with a small valid plan of
// the requested category. Selected by llm.provider = "mock".
func NewSampleProvider() *MockProvider {
	return &MockProvider{ContentFor: func(_, userPrompt string) string {
		if strings.Contains(userPrompt, "CATEGORY: MEAL") {
			return sampleMealPlan
		}
		return sampleWorkoutPlan
	}}
}

func (p *MockProvider) Name() string { return "Mock" }

func (p *MockProvider) Ping(_ context.Context) error {
	return p.PingErr
}

func (p *MockProvider) Generate(_ context.Context, systemPrompt, userPrompt string, opts Options) (*Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt, Options: opts})
	p.mu.Unlock()

	if p.GenerateErr != nil {
		return nil, p.GenerateErr
	}
	content := p.FixedContent
	if p.ContentFor != nil {
		content = p.ContentFor(systemPrompt, userPrompt)
	}
	stop := p.StopReason
	if stop == "" {
		stop = "stop"
	}
	return &Response{
		Content:    content,
		Model:      "mock",
		TokensUsed: 100,
		Duration:   time.Millisecond,
		StopReason: stop,
	}, nil
}

// Calls returns the recorded Generate invocations.
func (p *MockProvider) Calls() []MockCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MockCall(nil), p.calls...)
}

const sampleWorkoutPlan = `{
  "title": "Full Body Foundations",
  "days": [
    {"day_label": "Monday", "focus": "Lower", "exercises": [
      {"name": "Goblet Squat", "sets": 3, "reps": "10", "rest_seconds": 90},
      {"name": "Romanian Deadlift", "sets": 3, "reps": "8", "rest_seconds": 90}
    ]},
    {"day_label": "Wednesday", "focus": "Upper", "exercises": [
      {"name": "Push-up", "sets": 3, "reps": "12", "rest_seconds": 60},
      {"name": "Dumbbell Row", "sets": 3, "reps": "10", "rest_seconds": 60}
    ]},
    {"day_label": "Friday", "focus": "Conditioning", "exercises": [
      {"name": "Walking Lunge", "sets": 3, "reps": "12 each side", "rest_seconds": 60},
      {"name": "Plank", "sets": 3, "reps": "45 seconds", "rest_seconds": 45}
    ]}
  ]
}`

const sampleMealPlan = `{
  "title": "Balanced Week",
  "target_calories": 2200,
  "days": [
    {"day_label": "Monday", "total_calories": 2150, "meals": [
      {"type": "Breakfast", "name": "Greek Yogurt Bowl", "calories": 450, "protein": 30, "ingredients": ["greek yogurt", "berries", "granola"], "prep": "Layer and serve."},
      {"type": "Lunch", "name": "Chicken Rice Bowl", "calories": 700, "protein": 50, "ingredients": ["chicken breast", "rice", "broccoli"], "prep": "Grill chicken, steam broccoli."},
      {"type": "Dinner", "name": "Salmon and Potatoes", "calories": 750, "protein": 45, "ingredients": ["salmon", "potatoes", "asparagus"], "prep": "Roast at 200C for 20 minutes."},
      {"type": "Snack", "name": "Apple and Peanut Butter", "calories": 250, "protein": 7, "ingredients": ["apple", "peanut butter"]}
    ]}
  ]
}`
