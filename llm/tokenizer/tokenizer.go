// Package tokenizer provides token counting used to estimate usage when a
// backend response omits its counters. Exact counts come from tiktoken for
// models with a known encoding; everything else falls back to a CJK-aware
// character estimator.
package tokenizer

import (
	"github.com/weftflow/weft/types"
)

// Counter counts tokens in a text string.
type Counter interface {
	// CountTokens returns the token count for the given text.
	CountTokens(text string) (int, error)

	// Name returns the counter's name.
	Name() string
}

// ForModel returns a tiktoken-backed counter when the model maps to a known
// encoding, otherwise the generic estimator. The returned counter never
// fails to construct; tiktoken initialization errors surface on first count
// and callers should then fall back to EstimateUsage.
func ForModel(model string) Counter {
	if _, ok := lookupEncoding(model); ok {
		return NewTiktokenCounter(model)
	}
	return NewEstimatorCounter()
}

// EstimateUsage computes best-effort usage counters for a prompt/completion
// pair. The result is always flagged Estimated.
func EstimateUsage(model, prompt, completion string) types.TokenUsage {
	counter := ForModel(model)

	promptTokens, err := counter.CountTokens(prompt)
	if err != nil {
		promptTokens, _ = NewEstimatorCounter().CountTokens(prompt)
	}
	completionTokens, err := counter.CountTokens(completion)
	if err != nil {
		completionTokens, _ = NewEstimatorCounter().CountTokens(completion)
	}

	return types.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Estimated:        true,
	}
}
