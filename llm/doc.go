/*
Package llm defines the uniform adapter contract over heterogeneous
model-serving backends and the registry that maps provider identifiers to
adapter implementations.

# Core interfaces and types

  - Adapter: Complete(ctx, *Request) (*Response, error), plus Name and
    SupportsNativeJSON
  - Registry: explicit provider-name to Adapter mapping, built at startup
  - Request: model, messages, sampling parameters, response-format hint,
    and connection overrides (base URL, credential)
  - Response: textual content and token usage counters

Reference adapters for three backend wire formats live under llm/adapters:
ollama (generate-style), vllm (OpenAI-compatible completions with guided
decoding), and tgi (inference-server inputs/parameters shape). Adapter
failures are *types.Error values carrying the HTTP status and a retryable
flag so the workflow engine's retry policy can distinguish transient from
terminal failures.
*/
package llm
