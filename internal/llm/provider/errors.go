package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies provider failures
type ErrorCode string

const (
	ErrorCodeAuthentication ErrorCode = "authentication"
	ErrorCodeRateLimit      ErrorCode = "rate_limit"
	ErrorCodeModelNotFound  ErrorCode = "model_not_found"
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeServerError    ErrorCode = "server_error"
	ErrorCodeUnknown        ErrorCode = "unknown"
)

// ProviderError wraps an underlying provider failure with a
// classification the caller can branch on.
type ProviderError struct {
	Provider      string
	Code          ErrorCode
	Message       string
	IsRetryable   bool
	OriginalError error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// NewProviderError creates a classified provider error
func NewProviderError(provider string, code ErrorCode, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:      provider,
		Code:          code,
		Message:       message,
		IsRetryable:   code == ErrorCodeRateLimit || code == ErrorCodeServerError || code == ErrorCodeTimeout,
		OriginalError: err,
	}
}

// classifyError determines an error code from an error message
// (case-insensitive); the SDKs do not expose structured codes uniformly.
func classifyError(err error) ErrorCode {
	if err == nil {
		return ErrorCodeUnknown
	}
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "credential") || strings.Contains(errMsg, "403") || strings.Contains(errMsg, "401"):
		return ErrorCodeAuthentication
	case strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota"):
		return ErrorCodeRateLimit
	case strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "404"):
		return ErrorCodeModelNotFound
	case strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "400"):
		return ErrorCodeInvalidRequest
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return ErrorCodeTimeout
	case strings.Contains(errMsg, "500") || strings.Contains(errMsg, "503") || strings.Contains(errMsg, "server"):
		return ErrorCodeServerError
	default:
		return ErrorCodeUnknown
	}
}

// isRetryable checks if an error is worth retrying
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.IsRetryable
	}
	code := classifyError(err)
	return code == ErrorCodeRateLimit || code == ErrorCodeServerError || code == ErrorCodeTimeout
}
