package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Reason categorizes a backend failure for retry decisions.
type Reason string

const (
	ReasonRateLimit      Reason = "rate_limit"
	ReasonOverloaded     Reason = "overloaded"
	ReasonServerError    Reason = "server_error"
	ReasonTimeout        Reason = "timeout"
	ReasonAuth           Reason = "auth"
	ReasonInvalidRequest Reason = "invalid_request"
	ReasonUnknown        Reason = "unknown"
)

// IsRetryable reports whether the failure class suggests retrying may help.
func (r Reason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonOverloaded, ReasonServerError, ReasonTimeout:
		return true
	default:
		return false
	}
}

// BackendError is a classified failure from an LLM backend.
type BackendError struct {
	Reason Reason
	Status int
	Model  string
	Cause  error
}

func (e *BackendError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *BackendError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err is a backend failure worth retrying.
func IsRetryable(err error) bool {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Reason.IsRetryable()
	}
	return false
}

// WrapError classifies an error from the Anthropic SDK. Non-API errors are
// classified by message text.
func WrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return err
	}

	wrapped := &BackendError{Reason: ReasonUnknown, Model: model, Cause: err}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		wrapped.Status = apiErr.StatusCode
		wrapped.Reason = classifyStatus(apiErr.StatusCode)
		return wrapped
	}

	wrapped.Reason = classifyMessage(err.Error())
	return wrapped
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == 529:
		return ReasonOverloaded
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyMessage(msg string) Reason {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests"):
		return ReasonRateLimit
	case strings.Contains(msg, "overloaded"):
		return ReasonOverloaded
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "invalid api key"):
		return ReasonAuth
	case strings.Contains(msg, "server error") || strings.Contains(msg, "internal server"):
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}
