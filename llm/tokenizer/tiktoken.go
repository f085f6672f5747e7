package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings maps model names to their tiktoken encoding. Open-weight
// models routinely served behind OpenAI-compatible endpoints are listed with
// the encoding closest to their tokenizer family.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// lookupEncoding resolves a model name to an encoding, trying prefix match
// (e.g. "gpt-4o-2024" matches "gpt-4o").
func lookupEncoding(model string) (string, bool) {
	if enc, ok := modelEncodings[model]; ok {
		return enc, true
	}
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) {
			return enc, true
		}
	}
	return "", false
}

// TiktokenCounter wraps tiktoken for models with a known encoding.
type TiktokenCounter struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenCounter creates a tiktoken-backed counter for the given model.
// Unknown models default to cl100k_base.
func NewTiktokenCounter(model string) *TiktokenCounter {
	enc, ok := lookupEncoding(model)
	if !ok {
		enc = "cl100k_base"
	}
	return &TiktokenCounter{model: model, encoding: enc}
}

// init lazily initializes the tiktoken encoding (may load data on first use).
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens returns the exact token count for text.
func (t *TiktokenCounter) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Name returns the counter's name.
func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
