package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Compile-time error codes. Always fatal before any step runs.
const (
	ErrCompile         ErrorCode = "COMPILE"
	ErrCycle           ErrorCode = "CYCLE"
	ErrDanglingRef     ErrorCode = "DANGLING_REFERENCE"
	ErrBadPlaceholder  ErrorCode = "BAD_PLACEHOLDER"
	ErrUnknownStepType ErrorCode = "UNKNOWN_STEP_TYPE"
	ErrUnknownProvider ErrorCode = "UNKNOWN_PROVIDER"
)

// Adapter and upstream error codes. Retryability follows the HTTP mapping
// in llm/adapters.
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrForbidden         ErrorCode = "FORBIDDEN"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrModelOverloaded   ErrorCode = "MODEL_OVERLOADED"
	ErrUpstreamTimeout   ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError     ErrorCode = "UPSTREAM_ERROR"
	ErrNoCompletion      ErrorCode = "NO_COMPLETION"
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

// Run-time error codes raised by the workflow engine.
const (
	ErrStructuredOutput ErrorCode = "STRUCTURED_OUTPUT"
	ErrStepFailed       ErrorCode = "STEP_FAILED"
	ErrMissingSecret    ErrorCode = "MISSING_SECRET"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrCanceled         ErrorCode = "CANCELED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	StepID     string    `json:"step_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithStep sets the step id the error originated from.
func (e *Error) WithStep(stepID string) *Error {
	e.StepID = stepID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
