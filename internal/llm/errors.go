package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from a completion backend.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string // provider error code or type, if reported
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm/%s: HTTP %d (%s): %s", strings.ToLower(e.Provider), e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llm/%s: HTTP %d: %s", strings.ToLower(e.Provider), e.StatusCode, e.Message)
}

var quotaCodes = []string{
	"insufficient_quota",
	"quota_exceeded",
	"billing_hard_limit_reached",
	"credit_balance_too_low",
}

var quotaPhrases = []string{
	"quota",
	"credit balance",
	"insufficient credit",
	"billing",
}

// IsQuota reports whether the error means the account ran out of quota or
// credit. Plain rate limiting is not a quota error.
func (e *APIError) IsQuota() bool {
	if e.StatusCode == http.StatusPaymentRequired {
		return true
	}
	code := strings.ToLower(e.Code)
	for _, c := range quotaCodes {
		if code == c {
			return true
		}
	}
	msg := strings.ToLower(e.Message)
	for _, p := range quotaPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// UserMessage returns a short explanation suitable for showing to an
// operator testing the connection.
func (e *APIError) UserMessage() string {
	msg := strings.ToLower(e.Message)
	switch {
	case e.IsQuota():
		return fmt.Sprintf("Insufficient credits or quota on the %s account.", e.Provider)
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return fmt.Sprintf("Invalid API key for %s. Check the configured key.", e.Provider)
	case e.StatusCode == http.StatusTooManyRequests:
		return fmt.Sprintf("Rate limit exceeded at %s. Wait a minute and try again.", e.Provider)
	case e.StatusCode == http.StatusNotFound || strings.Contains(msg, "model not found") || strings.Contains(msg, "does not exist"):
		return fmt.Sprintf("Model not found at %s. Check the configured model name.", e.Provider)
	case e.StatusCode >= 500:
		return fmt.Sprintf("%s is temporarily unavailable. Try again later.", e.Provider)
	default:
		return fmt.Sprintf("%s request failed (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
	}
}
