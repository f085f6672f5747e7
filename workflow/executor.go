package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/llm/retry"
	"github.com/weftflow/weft/llm/tokenizer"
	"github.com/weftflow/weft/structured"
	"github.com/weftflow/weft/types"
)

// StepRequest carries everything a handler needs for one step invocation.
type StepRequest struct {
	// Step is the compiled step being executed.
	Step *Step
	// Prompt is the step's prompt with all placeholders resolved.
	Prompt string
	// Adapter is the provider adapter the step's config names, nil when the
	// step names no provider.
	Adapter llm.Adapter
	// Conn is the run's connection configuration for that provider.
	Conn ProviderConn
	// Retryer applies the workflow's retry policy to transient failures.
	Retryer retry.Retryer
	// Pipeline recovers structured output for steps that request it.
	Pipeline *structured.Pipeline
	// Logger is scoped to the step.
	Logger *zap.Logger
}

// StepOutput is a handler's successful result.
type StepOutput struct {
	// Text is the raw textual output.
	Text string
	// Structured is the parsed JSON value for structured steps.
	Structured json.RawMessage
	// Usage holds token counters, estimated when the backend reports none.
	Usage types.TokenUsage
}

// Handler executes one step type. Implementations must be safe for
// concurrent use.
type Handler interface {
	Execute(ctx context.Context, req *StepRequest) (*StepOutput, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *StepRequest) (*StepOutput, error)

func (f HandlerFunc) Execute(ctx context.Context, req *StepRequest) (*StepOutput, error) {
	return f(ctx, req)
}

// textGenerationHandler is the built-in handler: one adapter call, routed
// through the structured repair pipeline when the step asks for JSON.
type textGenerationHandler struct{}

func (textGenerationHandler) Execute(ctx context.Context, req *StepRequest) (*StepOutput, error) {
	cfg := req.Step.Config

	callReq := &llm.Request{
		Model:       cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: req.Prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		BaseURL:     req.Conn.BaseURL,
		APIKey:      req.Conn.APIKey,
	}
	if cfg.WantsJSON() {
		// Only backends with a native JSON mode get the constraint on the
		// wire; everyone else goes through the repair pipeline as-is.
		if req.Adapter.SupportsNativeJSON() {
			callReq.Format = llm.FormatJSON
			callReq.Schema = json.RawMessage(cfg.Schema)
		}
		return executeStructured(ctx, req, callReq)
	}

	start := time.Now()
	var resp *llm.Response
	err := req.Retryer.Do(ctx, func() error {
		var callErr error
		resp, callErr = req.Adapter.Complete(ctx, callReq)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	req.Logger.Debug("completion received",
		zap.Duration("latency", time.Since(start)),
		zap.Int("chars", len(resp.Content)),
	)

	return &StepOutput{
		Text:  resp.Content,
		Usage: completeUsage(resp.Usage, cfg.Model, req.Prompt, resp.Content),
	}, nil
}

// executeStructured drives the repair pipeline. The adapter is wrapped so
// every pipeline invocation, retry tier included, goes through the retryer.
func executeStructured(ctx context.Context, req *StepRequest, callReq *llm.Request) (*StepOutput, error) {
	retried := &llm.AdapterFunc{
		ProviderName: req.Adapter.Name(),
		NativeJSON:   req.Adapter.SupportsNativeJSON(),
		Fn: func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
			var resp *llm.Response
			err := req.Retryer.Do(ctx, func() error {
				var callErr error
				resp, callErr = req.Adapter.Complete(ctx, r)
				return callErr
			})
			return resp, err
		},
	}

	res, err := req.Pipeline.Run(ctx, retried, callReq)
	if err != nil {
		var serr *structured.Error
		if errors.As(err, &serr) {
			return nil, types.Errorf(types.ErrStructuredOutput,
				"structured output exhausted at %s tier; final text: %.200s", serr.Tier, serr.Raw).
				WithStep(req.Step.ID).WithCause(err)
		}
		return nil, err
	}

	return &StepOutput{
		Text:       res.Raw,
		Structured: res.Value,
		Usage:      completeUsage(res.Usage, callReq.Model, req.Prompt, res.Raw),
	}, nil
}

// completeUsage falls back to tokenizer estimation when the backend reports
// no counters.
func completeUsage(usage types.TokenUsage, model, prompt, completion string) types.TokenUsage {
	if usage.IsZero() {
		return tokenizer.EstimateUsage(model, prompt, completion)
	}
	return usage
}
