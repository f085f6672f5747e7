// Package ollama implements the adapter for generate-style backends: a
// single prompt string, sampling options nested under an options key, and an
// optional native JSON output mode.
package ollama

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
	Name = "ollama"

	defaultBaseURL = "http://localhost:11434"
	generatePath   = "/api/generate"
)

// Config holds the adapter configuration.
type Config struct {
	// BaseURL is the backend base URL. Defaults to a local instance.
	BaseURL string
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// Timeout is the HTTP client timeout. Defaults to adapters.DefaultTimeout.
	Timeout time.Duration
}

// Adapter talks to an ollama-compatible /api/generate endpoint.
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

// SupportsNativeJSON reports that the backend has a native JSON output mode.
func (a *Adapter) SupportsNativeJSON() bool { return true }

// generateRequest is the backend wire format.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete performs one generation call. Any non-2xx response is a hard
// failure mapped through the common error mapping.
func (a *Adapter) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = a.cfg.BaseURL
	}
	model := req.Model
	if model == "" {
		model = a.cfg.DefaultModel
	}

	body := generateRequest{
		Model:  model,
		Prompt: req.Prompt(),
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.Format == llm.FormatJSON {
		body.Format = "json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, adapters.Endpoint(baseURL, generatePath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	adapters.BearerHeaders(httpReq, req.APIKey)

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

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, "decode generate response").
			WithProvider(Name).
			WithCause(err)
	}

	a.logger.Debug("generate call completed",
		zap.String("model", model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("eval_count", genResp.EvalCount),
	)

	return &llm.Response{
		Content: genResp.Response,
		Model:   genResp.Model,
		Usage: types.TokenUsage{
			PromptTokens:     genResp.PromptEvalCount,
			CompletionTokens: genResp.EvalCount,
			TotalTokens:      genResp.PromptEvalCount + genResp.EvalCount,
		},
	}, nil
}
