package structured

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/llm/retry"
	"github.com/weftflow/weft/types"
)

// scriptedAdapter replays canned replies and records every request it saw.
type scriptedAdapter struct {
	replies []string
	reqs    []*llm.Request
	calls   int
	usage   types.TokenUsage
}

func (s *scriptedAdapter) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.reqs = append(s.reqs, req)
	reply := s.replies[s.calls]
	s.calls++
	return &llm.Response{Content: reply, Usage: s.usage}, nil
}

func (s *scriptedAdapter) Name() string             { return "scripted" }
func (s *scriptedAdapter) SupportsNativeJSON() bool { return false }

func fastPolicy(maxRetries int) *retry.Policy {
	return &retry.Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRunNativeTier(t *testing.T) {
	t.Parallel()

	adapter := &scriptedAdapter{
		replies: []string{`{"answer": 42}`},
		usage:   types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	p := NewPipeline(fastPolicy(2), nil)

	res, err := p.Run(context.Background(), adapter, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	})
	require.NoError(t, err)

	assert.Equal(t, TierNative, res.Tier)
	assert.Equal(t, 1, res.Attempts)
	assert.JSONEq(t, `{"answer": 42}`, string(res.Value))
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestRunRepairTier(t *testing.T) {
	t.Parallel()

	adapter := &scriptedAdapter{
		replies: []string{"Sure, here it is:\n```json\n{\"answer\": 42,}\n```\nEnjoy!"},
	}
	p := NewPipeline(fastPolicy(2), nil)

	res, err := p.Run(context.Background(), adapter, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	})
	require.NoError(t, err)

	assert.Equal(t, TierRepair, res.Tier)
	assert.Equal(t, 1, res.Attempts)
	assert.JSONEq(t, `{"answer": 42}`, string(res.Value))
	assert.Equal(t, 1, adapter.calls)
}

func TestRunRetryTierAmendsPrompt(t *testing.T) {
	t.Parallel()

	adapter := &scriptedAdapter{
		replies: []string{
			"I cannot produce JSON, sorry.",
			`{"answer": 42}`,
		},
		usage: types.TokenUsage{TotalTokens: 7},
	}
	p := NewPipeline(fastPolicy(2), nil)

	res, err := p.Run(context.Background(), adapter, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	})
	require.NoError(t, err)

	assert.Equal(t, TierNative, res.Tier)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 14, res.Usage.TotalTokens)

	// The second request carries the stricter-formatting amendment; the
	// first does not.
	require.Len(t, adapter.reqs, 2)
	assert.Len(t, adapter.reqs[0].Messages, 1)
	require.Len(t, adapter.reqs[1].Messages, 2)
	assert.Equal(t, llm.RoleUser, adapter.reqs[1].Messages[1].Role)
	assert.Contains(t, adapter.reqs[1].Messages[1].Content, "valid JSON")
}

func TestRunDoesNotMutateRequest(t *testing.T) {
	t.Parallel()

	adapter := &scriptedAdapter{
		replies: []string{"nope", `{"ok": true}`},
	}
	req := &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	}
	p := NewPipeline(fastPolicy(1), nil)

	_, err := p.Run(context.Background(), adapter, req)
	require.NoError(t, err)
	assert.Len(t, req.Messages, 1)
}

func TestRunExhaustion(t *testing.T) {
	t.Parallel()

	adapter := &scriptedAdapter{
		replies: []string{"nothing useful", "still nothing", "nope"},
	}
	p := NewPipeline(fastPolicy(2), nil)

	_, err := p.Run(context.Background(), adapter, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	})
	require.Error(t, err)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, TierRetry, serr.Tier)
	assert.Equal(t, "nope", serr.Raw)
	assert.Equal(t, 3, adapter.calls)
	assert.Contains(t, serr.Error(), "retry tier")
}

func TestRunExhaustionWithoutRetries(t *testing.T) {
	t.Parallel()

	adapter := &scriptedAdapter{replies: []string{"prose only"}}
	p := NewPipeline(fastPolicy(0), nil)

	_, err := p.Run(context.Background(), adapter, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	})
	require.Error(t, err)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, TierRepair, serr.Tier)
	assert.Equal(t, "prose only", serr.Raw)
}

func TestRunAdapterErrorPassesThrough(t *testing.T) {
	t.Parallel()

	boom := types.NewError(types.ErrUpstreamError, "backend down").WithRetryable(true)
	adapter := &llm.AdapterFunc{
		ProviderName: "failing",
		Fn: func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
			return nil, boom
		},
	}
	p := NewPipeline(fastPolicy(2), nil)

	_, err := p.Run(context.Background(), adapter, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	})
	require.ErrorIs(t, err, boom)
}

func TestRunCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	adapter := &scriptedAdapter{replies: []string{"bad", "bad", "bad"}}
	p := NewPipeline(&retry.Policy{
		MaxRetries:   2,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, adapter, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer"}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, adapter.calls)

	var werr *types.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, types.ErrCanceled, werr.Code)
}
