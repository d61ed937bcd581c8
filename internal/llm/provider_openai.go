package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible APIs.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI provider.
// If baseURL is empty, it defaults to the official OpenAI API.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{apiKey: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.Generate(ctx, "Respond with OK.", "ping", Options{MaxTokens: 10})
	return err
}

// Generate runs one chat completion. A refusal or a content-filter stop is
// an error: neither carries a plan.
func (p *OpenAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Response, error) {
	payload := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSON {
		payload.ResponseFormat = &chatFormat{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm/openai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("llm/openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm/openai: request failed: %w", err)
	}
	defer resp.Body.Close()
	duration := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm/openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, openAIError(resp.StatusCode, respBody)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("llm/openai: parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("llm/openai: no choices in response")
	}

	choice := result.Choices[0]
	log.WithFields(log.Fields{
		"model":         result.Model,
		"finish_reason": choice.FinishReason,
		"tokens":        result.Usage.TotalTokens,
	}).Debug("llm/openai: completion received")

	switch {
	case choice.Message.Refusal != "":
		return nil, fmt.Errorf("llm/openai: model refused: %s", choice.Message.Refusal)
	case choice.FinishReason == "content_filter":
		return nil, fmt.Errorf("llm/openai: completion stopped by content filter")
	}

	return &Response{
		Content:    choice.Message.Content,
		Model:      result.Model,
		TokensUsed: result.Usage.TotalTokens,
		Duration:   duration,
		StopReason: choice.FinishReason,
	}, nil
}

// openAIError builds an APIError from a non-200 response. The code falls
// back to the error type when the API leaves it empty.
func openAIError(status int, body []byte) *APIError {
	apiErr := &APIError{Provider: "OpenAI", StatusCode: status, Message: string(body)}
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) != nil || errResp.Error.Message == "" {
		return apiErr
	}
	apiErr.Message = errResp.Error.Message
	apiErr.Code = errResp.Error.Code
	if apiErr.Code == "" {
		apiErr.Code = errResp.Error.Type
	}
	return apiErr
}
