package llm

import (
	"context"
	"encoding/json"

	"github.com/weftflow/weft/types"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of prompt content sent to a backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests a structured response shape from the backend.
type ResponseFormat string

const (
	// FormatText is the default free-text response.
	FormatText ResponseFormat = "text"
	// FormatJSON requests a JSON-valued response. Only adapters whose
	// SupportsNativeJSON returns true honor this natively; all others rely
	// on the structured repair pipeline.
	FormatJSON ResponseFormat = "json"
)

// Request is the uniform call shape every adapter translates into its
// backend's wire format.
type Request struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Temperature float32        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Format      ResponseFormat `json:"response_format,omitempty"`

	// Schema optionally constrains FormatJSON responses on backends with
	// guided decoding. Ignored elsewhere.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Connection settings supplied by the run context, not the workflow
	// definition.
	BaseURL string `json:"-"`
	APIKey  string `json:"-"`
}

// Prompt flattens the messages into a single prompt string for backends
// that take plain text rather than a message list.
func (r *Request) Prompt() string {
	switch len(r.Messages) {
	case 0:
		return ""
	case 1:
		return r.Messages[0].Content
	}
	out := r.Messages[0].Content
	for _, m := range r.Messages[1:] {
		out += "\n\n" + m.Content
	}
	return out
}

// Response is the normalized result of one adapter call.
type Response struct {
	Content string           `json:"content"`
	Model   string           `json:"model,omitempty"`
	Usage   types.TokenUsage `json:"usage,omitempty"`
}

// Adapter translates the engine's uniform call shape into a specific
// model-serving backend's wire format and back.
//
// Implementations must be safe for concurrent use: a single adapter value is
// shared by every step of every run that names its provider.
type Adapter interface {
	// Complete performs one synchronous generation call.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name returns the adapter's unique provider identifier.
	Name() string

	// SupportsNativeJSON reports whether the backend offers a native
	// constrained JSON output mode.
	SupportsNativeJSON() bool
}

// AdapterFunc adapts a plain function to the Adapter interface, for tests
// and custom providers registered at startup.
type AdapterFunc struct {
	ProviderName string
	NativeJSON   bool
	Fn           func(ctx context.Context, req *Request) (*Response, error)
}

func (a *AdapterFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	if a.Fn == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "adapter function not configured").WithProvider(a.ProviderName)
	}
	return a.Fn(ctx, req)
}

func (a *AdapterFunc) Name() string             { return a.ProviderName }
func (a *AdapterFunc) SupportsNativeJSON() bool { return a.NativeJSON }
