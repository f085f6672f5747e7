package tokenizer

import (
	"unicode/utf8"
)

// EstimatorCounter is a character-count-based token estimator.
// It distinguishes CJK and ASCII characters for better accuracy compared to
// a naive len/4 approach.
type EstimatorCounter struct{}

// NewEstimatorCounter creates a generic estimator.
func NewEstimatorCounter() *EstimatorCounter {
	return &EstimatorCounter{}
}

// CountTokens estimates the token count of text.
// CJK characters ~1.5 chars/token, everything else ~4 chars/token.
func (e *EstimatorCounter) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	cjkTokens := float64(cjkCount) / 1.5
	asciiTokens := float64(totalChars-cjkCount) / 4.0
	estimated := int(cjkTokens + asciiTokens)

	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

// Name returns the counter's name.
func (e *EstimatorCounter) Name() string { return "estimator" }

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
