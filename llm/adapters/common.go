// Package adapters holds the HTTP plumbing shared by the reference backend
// adapters: status-code to error mapping, error-envelope parsing, and the
// hardened HTTP client.
package adapters

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/weftflow/weft/internal/tlsutil"
	"github.com/weftflow/weft/types"
)

// DefaultTimeout is the HTTP client timeout used when a config leaves it zero.
const DefaultTimeout = 60 * time.Second

// NewHTTPClient returns the hardened HTTP client adapters share.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return tlsutil.Client(timeout)
}

// MapHTTPError maps an HTTP status code to a *types.Error with the proper
// retryable flag. This is the common error mapping used by every adapter.
func MapHTTPError(status int, msg, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusBadRequest:
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") ||
			strings.Contains(msgLower, "limit") {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status).WithProvider(provider)
		}
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamTimeout, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case 529: // model overloaded (used by some serving stacks)
		return types.NewError(types.ErrModelOverloaded, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).
			WithRetryable(status >= 500).
			WithProvider(provider)
	}
}

// WrapTransportError converts a client-side transport failure into a
// retryable *types.Error.
func WrapTransportError(err error, provider string) *types.Error {
	return types.NewError(types.ErrUpstreamError, err.Error()).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider).
		WithCause(err)
}

// ReadErrorMessage reads the error message from a response body.
// It tries to parse a JSON error envelope and falls back to the raw text.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	// TGI-style flat envelope.
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}

	return string(data)
}

// BearerHeaders sets the standard bearer-token auth headers.
// The Authorization header is omitted when apiKey is empty, which local
// serving stacks accept.
func BearerHeaders(r *http.Request, apiKey string) {
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}
	r.Header.Set("Content-Type", "application/json")
}

// Endpoint joins a base URL and path without doubled slashes.
func Endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
