package structured

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON locates the JSON candidate inside raw model text. Markdown
// fences are stripped first, then the outermost balanced {...} or [...] span
// is scanned out. The second return is false when the span never closes; the
// candidate then runs from the opening bracket to the end of the text so the
// repair step can complete it.
func ExtractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	if strings.Contains(s, "```") {
		if m := fenceRe.FindStringSubmatch(s); len(m) > 1 {
			s = strings.TrimSpace(m[1])
		}
	}

	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	// Never closed: hand back the truncated span for repair.
	return s[start:], false
}

// RepairJSON applies the syntactic repairs in order: interior quote escaping,
// trailing-comma removal, then truncated-bracket completion.
func RepairJSON(s string) string {
	s = escapeInnerQuotes(s)
	s = removeTrailingCommas(s)
	s = closeTruncated(s)
	return s
}

// escapeInnerQuotes escapes unescaped double quotes that appear inside string
// values. A quote inside a string is treated as closing only when the next
// non-space character is structural (comma, colon, closing bracket) or the
// text ends; anything else means the model emitted a bare quote mid-value.
func escapeInnerQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '"':
			if isClosingQuote(s, i) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// isClosingQuote reports whether the quote at index i plausibly terminates
// its string, judged by the next non-space character.
func isClosingQuote(s string, i int) bool {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', ':', '}', ']':
			return true
		default:
			return false
		}
	}
	return true
}

// removeTrailingCommas drops commas that directly precede a closing bracket.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' && nextStructural(s, i) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// nextStructural reports whether the next non-space character after index i
// is a closing bracket.
func nextStructural(s string, i int) bool {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

// closeTruncated appends the closers a truncated document is missing. An
// unterminated string is closed first, then open brackets in reverse order.
func closeTruncated(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + len(stack) + 1)
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	// Drop a dangling comma left right before the appended closers.
	trimmed := strings.TrimRight(b.String(), " \t\n\r")
	if strings.HasSuffix(trimmed, ",") {
		b.Reset()
		b.WriteString(trimmed[:len(trimmed)-1])
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
