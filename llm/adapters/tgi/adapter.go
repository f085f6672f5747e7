// Package tgi implements the adapter for inference-server backends that take
// an inputs + parameters body. The response may be a single object or a
// one-element array depending on server version; both shapes are accepted.
package tgi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/llm/adapters"
	"github.com/weftflow/weft/types"
)

const (
	// Name is the provider identifier this adapter registers under.
	Name = "tgi"

	defaultBaseURL = "http://localhost:8080"
	generatePath   = "/generate"
)

// Config holds the adapter configuration.
type Config struct {
	// BaseURL is the backend base URL. Defaults to a local instance.
	BaseURL string
	// APIKey is the bearer credential, overridable per request.
	APIKey string
	// Timeout is the HTTP client timeout. Defaults to adapters.DefaultTimeout.
	Timeout time.Duration
}

// Adapter talks to a text-generation-inference style /generate endpoint.
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

// SupportsNativeJSON reports false: this backend family has no reliable
// constrained JSON mode, so structured steps go through the repair pipeline.
func (a *Adapter) SupportsNativeJSON() bool { return false }

type generateParameters struct {
	Temperature    float32 `json:"temperature,omitempty"`
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Complete performs one generation call, normalizing the object-or-array
// response shape.
func (a *Adapter) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = a.cfg.BaseURL
	}
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = a.cfg.APIKey
	}

	body := generateRequest{
		Inputs: req.Prompt(),
		Parameters: generateParameters{
			Temperature:    req.Temperature,
			MaxNewTokens:   req.MaxTokens,
			ReturnFullText: false,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, adapters.Endpoint(baseURL, generatePath), bytes.NewReader(payload))
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

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adapters.WrapTransportError(err, Name)
	}

	text, err := normalizeResponse(raw)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("generate call completed",
		zap.Duration("latency", time.Since(start)),
	)

	// The /generate endpoint reports no token counters; the step executor
	// estimates usage from the text.
	return &llm.Response{Content: text, Model: req.Model}, nil
}

// normalizeResponse accepts either {"generated_text": ...} or a one-element
// array of that object. Anything else is a normalization error.
func normalizeResponse(raw []byte) (string, error) {
	var obj generateResponse
	if err := json.Unmarshal(raw, &obj); err == nil && obj.GeneratedText != "" {
		return obj.GeneratedText, nil
	}

	var arr []generateResponse
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 1 && arr[0].GeneratedText != "" {
			return arr[0].GeneratedText, nil
		}
	}

	return "", types.Errorf(types.ErrMalformedResponse,
		"response is neither a generate object nor a one-element array: %.120s", string(raw)).
		WithProvider(Name)
}
