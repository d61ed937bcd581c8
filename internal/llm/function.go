package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carpenike/fitcoach/internal/plan"
)

// FunctionClient is a Completer that delegates to a remote generate-plan
// function. The function receives the PromptSpec as JSON and answers with
// the raw plan text.
type FunctionClient struct {
	url    string
	token  string
	client *http.Client
}

// NewFunctionClient creates a client for the function at url. A non-empty
// token is sent as a bearer credential.
func NewFunctionClient(url, token string) *FunctionClient {
	return &FunctionClient{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *FunctionClient) Complete(ctx context.Context, spec PromptSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	jsonBody, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("llm/function: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("llm/function: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm/function: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm/function: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// An {"error": ...} body is a service-level answer, not an outage.
		if _, ok := plan.CheckServiceError(string(respBody)); ok {
			return string(respBody), nil
		}
		if resp.StatusCode == http.StatusPaymentRequired {
			return ErrorDocument(QuotaExceeded), nil
		}
		return "", &APIError{
			Provider:   "Function",
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	return string(respBody), nil
}
