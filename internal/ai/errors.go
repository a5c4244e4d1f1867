// errors.go - Categorization of provider API failures

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

// APIError represents a categorized provider API error. Assist calls are
// never retried; Retryable only tells the operator whether a rerun may help.
type APIError struct {
	Provider   string
	Category   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s [%s] %s (status: %d, retryable: %v)", e.Provider, e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *APIError) Unwrap() error { return e.Err }

// Categorize analyzes err and wraps it in an APIError. A nil err stays nil.
func Categorize(provider string, err error) *APIError {
	if err == nil {
		return nil
	}

	var existing *APIError
	if errors.As(err, &existing) {
		return existing
	}

	apiErr := &APIError{
		Provider: provider,
		Category: "unknown",
		Message:  err.Error(),
		Err:      err,
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		apiErr.applyStatus(gErr.Code, gErr.Message)
		return apiErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		apiErr.Category = "timeout"
		apiErr.Message = "Request timeout - processing took too long"
		apiErr.Retryable = true
		return apiErr
	case errors.Is(err, context.Canceled):
		apiErr.Category = "canceled"
		apiErr.Message = "Request was canceled"
		return apiErr
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "limit"):
		apiErr.Category = "quota_exceeded"
		apiErr.Message = "API quota exceeded"
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		apiErr.Category = "timeout"
		apiErr.Message = "Request timeout"
		apiErr.Retryable = true
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network"):
		apiErr.Category = "network_error"
		apiErr.Message = "Network connection error"
		apiErr.Retryable = true
	}
	return apiErr
}

// statusError builds an APIError from an HTTP status and server message.
func statusError(provider string, code int, message string) *APIError {
	apiErr := &APIError{
		Provider: provider,
		Err:      fmt.Errorf("%s API error (%d): %s", provider, code, message),
	}
	apiErr.applyStatus(code, message)
	return apiErr
}

func (e *APIError) applyStatus(code int, serverMessage string) {
	e.StatusCode = code
	switch code {
	case 400:
		e.Category = "bad_request"
		e.Message = "Invalid request format or parameters"
	case 401:
		e.Category = "unauthorized"
		e.Message = "Invalid API key or authentication failed"
	case 403:
		e.Category = "forbidden"
		e.Message = "API key lacks required permissions"
	case 404:
		e.Category = "not_found"
		e.Message = "Model not found or invalid endpoint"
	case 413:
		e.Category = "payload_too_large"
		e.Message = "Request size exceeds limit"
	case 429:
		e.Category = "rate_limit"
		e.Message = "Rate limit exceeded - too many requests"
		e.Retryable = true
	case 500, 502, 503, 504:
		e.Category = "server_error"
		e.Message = fmt.Sprintf("%s server error (%d)", e.Provider, code)
		e.Retryable = true
	default:
		e.Category = "unknown_api_error"
		e.Message = fmt.Sprintf("API error: %s", serverMessage)
		e.Retryable = code >= 500
	}
}

// Suggestion is an operator-facing hint for the verify endpoint.
func (e *APIError) Suggestion() string {
	switch e.Category {
	case "rate_limit":
		return "Too many requests. Wait a moment and try again."
	case "quota_exceeded":
		return "API quota exceeded. Check the provider plan."
	case "unauthorized", "forbidden":
		return "API authentication failed. Check the configured API key."
	case "not_found":
		return "Check the configured model name."
	case "timeout", "server_error", "network_error":
		return "Provider temporarily unavailable. Try again in a few minutes."
	}
	return "Unexpected provider error."
}
