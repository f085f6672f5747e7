// Package template implements placeholder resolution for step configuration
// strings. Placeholders follow a small fixed grammar:
//
//	placeholder := "{{" identifier ( "." "output" )? "}}"
//
// Templates are parsed once into a segment list so the compiler can validate
// every reference against a step's dependency set before execution, and so
// resolution at run time is a straight concatenation with no re-scanning.
package template

import (
	"strings"

	"go.uber.org/zap"
)

// RefKind distinguishes step-output references from top-level input variables.
type RefKind int

const (
	// RefInput references a top-level workflow input variable.
	RefInput RefKind = iota
	// RefStepOutput references the output of a completed step.
	RefStepOutput
)

// Ref is one placeholder occurrence inside a template.
type Ref struct {
	// Name is the identifier between the braces, without the ".output"
	// suffix when present.
	Name string
	// Kind reports whether the reference targets a step output.
	Kind RefKind
}

// segment is either literal text or a parsed reference.
type segment struct {
	literal string
	ref     *Ref
}

// Template is a parsed configuration string.
type Template struct {
	source   string
	segments []segment
	refs     []Ref
}

// Parse scans src once and returns the parsed template. Text that does not
// match the placeholder grammar, including unterminated "{{", is kept as
// literal text.
func Parse(src string) *Template {
	t := &Template{source: src}

	rest := src
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		closing := strings.Index(rest[open:], "}}")
		if closing < 0 {
			break
		}
		closing += open

		inner := rest[open+2 : closing]
		ref, ok := parseRef(inner)
		if !ok {
			// Not a well-formed placeholder. Emit through the opening
			// braces as literal and keep scanning after them.
			t.appendLiteral(rest[:open+2])
			rest = rest[open+2:]
			continue
		}

		t.appendLiteral(rest[:open])
		t.segments = append(t.segments, segment{ref: &ref})
		t.refs = append(t.refs, ref)
		rest = rest[closing+2:]
	}
	t.appendLiteral(rest)

	return t
}

func (t *Template) appendLiteral(s string) {
	if s == "" {
		return
	}
	t.segments = append(t.segments, segment{literal: s})
}

// parseRef validates the text between braces against the grammar.
func parseRef(inner string) (Ref, bool) {
	name, suffix, hasDot := strings.Cut(inner, ".")
	if !isIdentifier(name) {
		return Ref{}, false
	}
	if !hasDot {
		return Ref{Name: name, Kind: RefInput}, true
	}
	if suffix != "output" {
		return Ref{}, false
	}
	return Ref{Name: name, Kind: RefStepOutput}, true
}

// isIdentifier reports whether s is a non-empty run of letters, digits,
// underscores, or hyphens starting with a letter or underscore.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

// Source returns the original unparsed string.
func (t *Template) Source() string { return t.source }

// Refs returns every placeholder reference in source order, duplicates
// included.
func (t *Template) Refs() []Ref { return t.refs }

// StepRefs returns the distinct step ids referenced via ".output".
func (t *Template) StepRefs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range t.refs {
		if r.Kind != RefStepOutput {
			continue
		}
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		ids = append(ids, r.Name)
	}
	return ids
}

// Env supplies values during resolution.
type Env struct {
	// Inputs holds top-level workflow input variables.
	Inputs map[string]string
	// Outputs holds completed step outputs keyed by step id.
	Outputs map[string]string
}

// Resolve substitutes every reference from env in a single pass. Resolved
// values are never re-scanned, so a step output containing "{{...}}" text
// passes through verbatim. Unknown input variables resolve to the empty
// string and are logged through logger when non-nil.
func (t *Template) Resolve(env Env, logger *zap.Logger) string {
	if len(t.refs) == 0 {
		return t.source
	}

	var b strings.Builder
	b.Grow(len(t.source))
	for _, seg := range t.segments {
		if seg.ref == nil {
			b.WriteString(seg.literal)
			continue
		}
		switch seg.ref.Kind {
		case RefStepOutput:
			b.WriteString(env.Outputs[seg.ref.Name])
		default:
			v, ok := env.Inputs[seg.ref.Name]
			if !ok && logger != nil {
				logger.Warn("unknown input variable resolved to empty string",
					zap.String("variable", seg.ref.Name),
				)
			}
			b.WriteString(v)
		}
	}
	return b.String()
}
