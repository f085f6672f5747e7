package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/llm/retry"
	"github.com/weftflow/weft/types"
)

// Tier identifies a stage of the repair pipeline.
type Tier int

const (
	// TierNative is a strict parse of the backend's reply, requested with the
	// backend's JSON mode when it has one.
	TierNative Tier = iota + 1
	// TierRepair is textual extraction plus syntactic repair of the reply.
	TierRepair
	// TierRetry is a fresh adapter invocation with a stricter prompt.
	TierRetry
)

// String returns the tier name used in logs and error messages.
func (t Tier) String() string {
	switch t {
	case TierNative:
		return "native"
	case TierRepair:
		return "repair"
	case TierRetry:
		return "retry"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Error reports pipeline exhaustion. Tier names the stage that last failed
// and Raw carries the final model text for diagnosis.
type Error struct {
	Tier  Tier
	Raw   string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("structured output failed at %s tier: %v", e.Tier, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Result is a successful pipeline outcome.
type Result struct {
	// Value is the validated JSON document.
	Value json.RawMessage
	// Raw is the model text the value was recovered from.
	Raw string
	// Tier is the stage that produced the value.
	Tier Tier
	// Attempts counts adapter invocations, the first call included.
	Attempts int
	// Usage aggregates token usage across every invocation.
	Usage types.TokenUsage
}

// strictFormatNote is appended to the conversation before each retry attempt.
const strictFormatNote = "Your previous reply was not valid JSON. " +
	"Respond again with a single valid JSON document and nothing else: " +
	"no prose, no markdown fences, no trailing commas."

// Pipeline recovers JSON from adapter replies. The zero value is not usable;
// construct with NewPipeline.
type Pipeline struct {
	policy *retry.Policy
	logger *zap.Logger
}

// NewPipeline creates a pipeline. A nil policy falls back to
// retry.DefaultPolicy, whose MaxRetries bounds the retry tier. A nil logger
// disables logging.
func NewPipeline(policy *retry.Policy, logger *zap.Logger) *Pipeline {
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		policy: policy,
		logger: logger.With(zap.String("component", "structured")),
	}
}

// Run drives the tiers until one yields valid JSON or the retry budget runs
// out. req is not mutated; retry attempts operate on an amended copy.
func (p *Pipeline) Run(ctx context.Context, adapter llm.Adapter, req *llm.Request) (*Result, error) {
	attempts := p.policy.MaxRetries + 1

	var usage types.TokenUsage
	var lastRaw string
	var lastErr error
	lastTier := TierNative

	for attempt := 0; attempt < attempts; attempt++ {
		callReq := req
		if attempt > 0 {
			lastTier = TierRetry
			callReq = amendRequest(req)

			delay := p.policy.Backoff(attempt)
			p.logger.Debug("retrying with stricter prompt",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, types.Errorf(types.ErrCanceled, "structured retry canceled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := adapter.Complete(ctx, callReq)
		if err != nil {
			return nil, err
		}
		usage.Add(resp.Usage)
		lastRaw = resp.Content

		// Tier 1: strict parse of the full reply.
		if value, perr := parseStrict(resp.Content); perr == nil {
			return &Result{
				Value:    value,
				Raw:      resp.Content,
				Tier:     TierNative,
				Attempts: attempt + 1,
				Usage:    usage,
			}, nil
		} else {
			lastErr = perr
		}

		// Tier 2: extract the candidate span, repair if needed, reparse once.
		candidate, balanced := ExtractJSON(resp.Content)
		if candidate != "" {
			if balanced {
				if value, perr := parseStrict(candidate); perr == nil {
					return &Result{
						Value:    value,
						Raw:      resp.Content,
						Tier:     TierRepair,
						Attempts: attempt + 1,
						Usage:    usage,
					}, nil
				}
			}
			repaired := RepairJSON(candidate)
			if value, perr := parseStrict(repaired); perr == nil {
				return &Result{
					Value:    value,
					Raw:      resp.Content,
					Tier:     TierRepair,
					Attempts: attempt + 1,
					Usage:    usage,
				}, nil
			} else {
				lastErr = perr
			}
		}
		if attempt == 0 {
			lastTier = TierRepair
		}

		p.logger.Debug("attempt produced no valid JSON",
			zap.Int("attempt", attempt+1),
			zap.Int("raw_len", len(resp.Content)),
		)
	}

	return nil, &Error{Tier: lastTier, Raw: lastRaw, Cause: lastErr}
}

// amendRequest clones req with the strict-formatting instruction appended.
func amendRequest(req *llm.Request) *llm.Request {
	amended := *req
	amended.Messages = make([]llm.Message, 0, len(req.Messages)+1)
	amended.Messages = append(amended.Messages, req.Messages...)
	amended.Messages = append(amended.Messages, llm.Message{
		Role:    llm.RoleUser,
		Content: strictFormatNote,
	})
	return &amended
}

// parseStrict decodes s as a single JSON document and requires the top level
// to be an object or array with nothing but whitespace after it.
func parseStrict(s string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty text")
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, fmt.Errorf("top level is not an object or array")
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var value json.RawMessage
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing content after JSON document")
	}
	return bytes.TrimSpace(value), nil
}
