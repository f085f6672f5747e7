// Package vllm implements the adapter for OpenAI-compatible completion
// backends. Structured output is requested through the server's guided
// decoding: a guided_json schema when the step supplies one, otherwise the
// json_object response format.
package vllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/llm/adapters"
	"github.com/weftflow/weft/types"
)

const (
	// Name is the provider identifier this adapter registers under.
	Name = "vllm"

	defaultBaseURL  = "http://localhost:8000"
	completionsPath = "/v1/chat/completions"
)

// Config holds the adapter configuration.
type Config struct {
	// BaseURL is the backend base URL. Defaults to a local instance.
	BaseURL string
	// APIKey is the bearer credential, overridable per request.
	APIKey string
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// Timeout is the HTTP client timeout. Defaults to adapters.DefaultTimeout.
	Timeout time.Duration
}

// Adapter talks to an OpenAI-compatible chat completions endpoint.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates the adapter.
func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:    cfg,
		client: adapters.NewHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("adapter", Name)),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() string { return Name }

// SupportsNativeJSON reports that the backend supports guided JSON decoding.
func (a *Adapter) SupportsNativeJSON() bool { return true }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatRequest is the OpenAI-compatible wire format plus the backend's guided
// decoding extension.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float32         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	GuidedJSON     json.RawMessage `json:"guided_json,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// Complete performs one chat completion call. An empty choice list is a
// types.ErrNoCompletion failure.
func (a *Adapter) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = a.cfg.BaseURL
	}
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = a.cfg.APIKey
	}
	model := req.Model
	if model == "" {
		model = a.cfg.DefaultModel
	}

	body := chatRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.Format == llm.FormatJSON {
		if len(req.Schema) > 0 {
			body.GuidedJSON = req.Schema
		} else {
			body.ResponseFormat = &responseFormat{Type: "json_object"}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, adapters.Endpoint(baseURL, completionsPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	adapters.BearerHeaders(httpReq, apiKey)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, adapters.WrapTransportError(err, Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return nil, adapters.MapHTTPError(resp.StatusCode, msg, Name)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, "decode completions response").
			WithProvider(Name).
			WithCause(err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, types.NewError(types.ErrNoCompletion, "backend returned no choices").WithProvider(Name)
	}

	a.logger.Debug("completion call finished",
		zap.String("model", model),
		zap.Duration("latency", time.Since(start)),
		zap.String("finish_reason", chatResp.Choices[0].FinishReason),
	)

	out := &llm.Response{
		Content: chatResp.Choices[0].Message.Content,
		Model:   chatResp.Model,
	}
	if chatResp.Usage != nil {
		out.Usage = types.TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}
	}
	return out, nil
}
