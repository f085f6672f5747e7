package tgi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/types"
)

func TestAdapterName(t *testing.T) {
	t.Parallel()

	a := New(Config{}, nil)
	assert.Equal(t, "tgi", a.Name())
	assert.False(t, a.SupportsNativeJSON())
}

func TestCompleteWireFormat(t *testing.T) {
	t.Parallel()

	var captured generateRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(generateResponse{GeneratedText: "hello back"})
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, APIKey: "tok-1"}, nil)
	resp, err := a.Complete(context.Background(), &llm.Request{
		Model:       "mistral-7b",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		Temperature: 0.3,
		MaxTokens:   64,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello back", resp.Content)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "hello", captured.Inputs)
	assert.InDelta(t, 0.3, captured.Parameters.Temperature, 1e-6)
	assert.Equal(t, 64, captured.Parameters.MaxNewTokens)
	assert.False(t, captured.Parameters.ReturnFullText)
}

func TestCompleteArrayResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]generateResponse{{GeneratedText: "from array"}})
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, nil)
	resp, err := a.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from array", resp.Content)
}

func TestCompleteMalformedResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"empty array", `[]`},
		{"two element array", `[{"generated_text":"a"},{"generated_text":"b"}]`},
		{"bare string", `"just text"`},
		{"missing field", `{"text":"wrong key"}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			a := New(Config{BaseURL: srv.URL}, nil)
			_, err := a.Complete(context.Background(), &llm.Request{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)

			var werr *types.Error
			require.ErrorAs(t, err, &werr)
			assert.Equal(t, types.ErrMalformedResponse, werr.Code)
		})
	}
}

func TestCompleteHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, nil)
	_, err := a.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	var werr *types.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, types.ErrUnauthorized, werr.Code)
	assert.False(t, werr.Retryable)
	assert.Contains(t, werr.Message, "invalid token")
}

func TestCompleteRedirectStatus(t *testing.T) {
	t.Parallel()

	// Any non-2xx status is a failure, 3xx included; the body must never be
	// normalized as a generation.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultipleChoices)
		w.Write([]byte(`{"generated_text":"stale"}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, nil)
	_, err := a.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	var werr *types.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, http.StatusMultipleChoices, werr.HTTPStatus)
}

func TestCompleteBaseURLOverride(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{GeneratedText: "ok"})
	}))
	defer srv.Close()

	a := New(Config{BaseURL: "http://unreachable.invalid"}, nil)
	resp, err := a.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}
