package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftflow/weft/types"
)

func fakeAdapter(name string) Adapter {
	return &AdapterFunc{
		ProviderName: name,
		Fn: func(ctx context.Context, req *Request) (*Response, error) {
			return &Response{Content: "ok"}, nil
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("ollama", fakeAdapter("ollama"))

	a, err := reg.Get("ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", a.Name())
	assert.True(t, reg.Has("ollama"))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownProvider, types.GetErrorCode(err))
	assert.False(t, reg.Has("nope"))
}

func TestRegistry_ReplaceKeepsLatest(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("p", &AdapterFunc{ProviderName: "p", NativeJSON: false})
	reg.Register("p", &AdapterFunc{ProviderName: "p", NativeJSON: true})

	a, err := reg.Get("p")
	require.NoError(t, err)
	assert.True(t, a.SupportsNativeJSON())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ListSorted(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("vllm", fakeAdapter("vllm"))
	reg.Register("ollama", fakeAdapter("ollama"))
	reg.Register("tgi", fakeAdapter("tgi"))

	assert.Equal(t, []string{"ollama", "tgi", "vllm"}, reg.List())
}

func TestAdapterFunc_NilFn(t *testing.T) {
	t.Parallel()
	a := &AdapterFunc{ProviderName: "broken"}
	_, err := a.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestRequest_Prompt(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", (&Request{}).Prompt())

	r := &Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}}
	assert.Equal(t, "hello", r.Prompt())

	r = &Request{Messages: []Message{
		{Role: RoleSystem, Content: "be strict"},
		{Role: RoleUser, Content: "hello"},
	}}
	assert.Equal(t, "be strict\n\nhello", r.Prompt())
}
