package llm

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/carpenike/fitcoach/internal/models"
)

// ErrNotConfigured is returned when no completion backend is configured.
var ErrNotConfigured = fmt.Errorf("llm: plan generation provider not configured")

// Provider is the interface for LLM backends.
type Provider interface {
	// Generate sends a system prompt and user prompt to the LLM and returns
	// the response text.
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Response, error)

	// Ping validates connectivity and credentials. Returns nil if the
	// provider is reachable and authenticated.
	Ping(ctx context.Context) error

	// Name returns the display name of this provider (e.g. "OpenAI", "Anthropic").
	Name() string
}

// Options controls LLM generation behavior.
type Options struct {
	Temperature float64
	MaxTokens   int
	JSON        bool // ask the backend for a bare JSON object when it supports it
}

// Response holds the LLM's output.
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	Duration   time.Duration
	StopReason string
}

// Truncated reports whether the provider stopped because it hit the token
// limit.
func (r *Response) Truncated() bool {
	return r.StopReason == "length" || r.StopReason == "max_tokens"
}

// NewProviderFromSettings creates a Provider using the current app_settings
// configuration (with env var overrides).
func NewProviderFromSettings(db *sql.DB) (Provider, error) {
	provider := models.GetSetting(db, "llm.provider")
	if provider == "" {
		return nil, ErrNotConfigured
	}

	model := models.GetSetting(db, "llm.model")
	apiKey := models.GetSetting(db, "llm.api_key")
	baseURL := models.GetSetting(db, "llm.base_url")

	switch provider {
	case "openai":
		return NewOpenAIProvider(apiKey, model, baseURL), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, model, baseURL), nil
	case "ollama":
		return NewOllamaProvider(baseURL, model), nil
	case "mock":
		return NewSampleProvider(), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}

// NewCompleterFromSettings returns the configured Completer: a FunctionClient
// when the provider is "function", otherwise a Service over the configured
// Provider.
func NewCompleterFromSettings(db *sql.DB) (Completer, error) {
	if models.GetSetting(db, "llm.provider") == "function" {
		url := models.GetSetting(db, "llm.function_url")
		if url == "" {
			return nil, fmt.Errorf("llm: provider \"function\" requires llm.function_url")
		}
		return NewFunctionClient(url, models.GetSetting(db, "function.token")), nil
	}
	return NewServiceFromSettings(db)
}

// NewServiceFromSettings returns a Service over the configured Provider. It
// never returns a FunctionClient, so it is what a hosted generate-plan
// function uses.
func NewServiceFromSettings(db *sql.DB) (*Service, error) {
	p, err := NewProviderFromSettings(db)
	if err != nil {
		return nil, err
	}
	svc := NewService(p, Options{
		Temperature: TemperatureFromSettings(db),
		MaxTokens:   MaxTokensFromSettings(db),
		JSON:        true,
	})
	svc.SystemPromptOverride = SystemPromptOverrideFromSettings(db)
	return svc, nil
}

// TemperatureFromSettings reads the temperature setting.
func TemperatureFromSettings(db *sql.DB) float64 {
	v := models.GetSetting(db, "llm.temperature")
	temp, err := strconv.ParseFloat(v, 64)
	if err != nil || temp < 0 || temp > 2 {
		return 0.7
	}
	return temp
}

// MaxTokensFromSettings reads the output token limit, clamped to 1024–65536.
func MaxTokensFromSettings(db *sql.DB) int {
	n, err := strconv.Atoi(models.GetSetting(db, "llm.max_tokens"))
	if err != nil {
		return 8192
	}
	return min(max(n, 1024), 65536)
}

// SystemPromptOverrideFromSettings returns the configured system prompt
// replacement, or "" to use the built-in prompt.
func SystemPromptOverrideFromSettings(db *sql.DB) string {
	return models.GetSetting(db, "llm.system_prompt_override")
}
