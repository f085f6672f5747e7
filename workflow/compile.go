package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/template"
	"github.com/weftflow/weft/types"
)

// CompileOption customizes compilation.
type CompileOption func(*compileOptions)

type compileOptions struct {
	handlers map[string]Handler
}

// WithStepHandler registers a handler for a custom step type. The built-in
// "text-generation" type cannot be overridden.
func WithStepHandler(stepType string, h Handler) CompileOption {
	return func(o *compileOptions) {
		o.handlers[stepType] = h
	}
}

// Plan is a compiled workflow: the definition plus a validated topological
// ordering, parsed prompt templates, and a reverse-dependency index. A Plan
// is immutable and safely shared by concurrent runs.
type Plan struct {
	def        *Definition
	reg        *llm.Registry
	steps      map[string]*Step
	order      []string
	layers     [][]string
	dependents map[string][]string
	templates  map[string]*template.Template
	handlers   map[string]Handler
}

// Definition returns the compiled definition. Callers must not mutate it.
func (p *Plan) Definition() *Definition { return p.def }

// Registry returns the adapter registry the plan was compiled against.
func (p *Plan) Registry() *llm.Registry { return p.reg }

// Order returns step ids in execution order: every step appears after all
// its dependencies, ties broken by declaration order.
func (p *Plan) Order() []string { return p.order }

// Layers groups the order into waves of mutually independent steps.
func (p *Plan) Layers() [][]string { return p.layers }

// Step returns the step for an id, nil when unknown.
func (p *Plan) Step(id string) *Step { return p.steps[id] }

// Dependents returns the ids of steps that depend directly on id.
func (p *Plan) Dependents(id string) []string { return p.dependents[id] }

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.order) }

// Template returns the parsed prompt template for a step id.
func (p *Plan) Template(id string) *template.Template { return p.templates[id] }

// Handler returns the handler for a step type.
func (p *Plan) Handler(stepType string) Handler { return p.handlers[stepType] }

// Compile validates def against reg and produces an executable Plan.
// Compilation is pure: it performs no I/O and the resulting plan may be
// cached and reused across runs.
//
// Rejected at compile time: duplicate or empty step ids, unknown step types,
// steps naming providers absent from reg, dependencies on undeclared ids,
// prompt placeholders referencing steps outside the declaring step's
// dependency set, and dependency cycles.
func Compile(def *Definition, reg *llm.Registry, opts ...CompileOption) (*Plan, error) {
	if def == nil {
		return nil, types.NewError(types.ErrCompile, "definition is nil")
	}
	if reg == nil {
		return nil, types.NewError(types.ErrCompile, "adapter registry is nil")
	}
	if len(def.Steps) == 0 {
		return nil, types.Errorf(types.ErrCompile, "workflow %q has no steps", def.Name)
	}

	options := compileOptions{handlers: map[string]Handler{
		StepTypeTextGeneration: textGenerationHandler{},
	}}
	for _, opt := range opts {
		opt(&options)
	}

	p := &Plan{
		def:        def,
		reg:        reg,
		steps:      make(map[string]*Step, len(def.Steps)),
		dependents: make(map[string][]string),
		templates:  make(map[string]*template.Template, len(def.Steps)),
		handlers:   options.handlers,
	}

	// Pass 1: ids, types, providers.
	for i := range def.Steps {
		s := &def.Steps[i]
		if s.ID == "" {
			return nil, types.Errorf(types.ErrCompile, "step %d has an empty id", i)
		}
		if _, dup := p.steps[s.ID]; dup {
			return nil, types.Errorf(types.ErrCompile, "duplicate step id %q", s.ID)
		}
		if _, known := options.handlers[s.effectiveType()]; !known {
			return nil, types.Errorf(types.ErrUnknownStepType, "step %q has unknown type %q", s.ID, s.Type).WithStep(s.ID)
		}
		if s.effectiveType() == StepTypeTextGeneration && s.Config.Provider == "" {
			return nil, types.Errorf(types.ErrCompile, "step %q declares no provider", s.ID).WithStep(s.ID)
		}
		if s.Config.Provider != "" && !reg.Has(s.Config.Provider) {
			return nil, types.Errorf(types.ErrUnknownProvider, "step %q names unregistered provider %q", s.ID, s.Config.Provider).
				WithStep(s.ID).WithProvider(s.Config.Provider)
		}
		p.steps[s.ID] = s
	}

	// Pass 2: dependencies and placeholders.
	for i := range def.Steps {
		s := &def.Steps[i]
		depSet := make(map[string]struct{}, len(s.Dependencies))
		for _, dep := range s.Dependencies {
			if _, ok := p.steps[dep]; !ok {
				return nil, types.Errorf(types.ErrDanglingRef, "step %q depends on unknown step %q", s.ID, dep).WithStep(s.ID)
			}
			if _, seen := depSet[dep]; seen {
				continue
			}
			depSet[dep] = struct{}{}
			p.dependents[dep] = append(p.dependents[dep], s.ID)
		}

		tpl := template.Parse(s.Config.Prompt)
		for _, ref := range tpl.StepRefs() {
			if _, ok := depSet[ref]; !ok {
				return nil, types.Errorf(types.ErrBadPlaceholder,
					"step %q references {{%s.output}} but %q is not in its dependency set", s.ID, ref, ref).WithStep(s.ID)
			}
		}
		p.templates[s.ID] = tpl
	}

	if cycle := findCycle(def); len(cycle) > 0 {
		return nil, types.Errorf(types.ErrCycle, "dependency cycle: %s", strings.Join(cycle, " -> "))
	}

	p.order, p.layers = layerize(def)
	return p, nil
}

// findCycle runs a depth-first traversal and returns the ids of the first
// cycle encountered, closing node repeated, or nil for an acyclic graph.
func findCycle(def *Definition) []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(def.Steps))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range def.step(id).Dependencies {
			switch color[dep] {
			case gray:
				// Found the back edge; slice out the cycle.
				for i, v := range stack {
					if v == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for i := range def.Steps {
		if color[def.Steps[i].ID] == white {
			if cycle := visit(def.Steps[i].ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// layerize computes the execution order for an acyclic definition. Each
// step's level is one past its deepest dependency; steps share a layer when
// they share a level, ordered within it by declaration. The flat order is
// the layer concatenation, which puts every step after all its dependencies
// with declaration order as the deterministic tie-break.
func layerize(def *Definition) ([]string, [][]string) {
	level := make(map[string]int, len(def.Steps))

	var levelOf func(id string) int
	levelOf = func(id string) int {
		if l, ok := level[id]; ok {
			return l
		}
		l := 0
		for _, dep := range def.step(id).Dependencies {
			if dl := levelOf(dep) + 1; dl > l {
				l = dl
			}
		}
		level[id] = l
		return l
	}

	maxLevel := 0
	for i := range def.Steps {
		if l := levelOf(def.Steps[i].ID); l > maxLevel {
			maxLevel = l
		}
	}

	layers := make([][]string, maxLevel+1)
	for i := range def.Steps {
		id := def.Steps[i].ID
		layers[level[id]] = append(layers[level[id]], id)
	}

	order := make([]string, 0, len(def.Steps))
	for _, layer := range layers {
		order = append(order, layer...)
	}
	return order, layers
}

// describePlan renders a compact one-line summary used in logs.
func describePlan(p *Plan) string {
	parts := make([]string, len(p.layers))
	for i, layer := range p.layers {
		sorted := append([]string{}, layer...)
		sort.Strings(sorted)
		parts[i] = fmt.Sprintf("[%s]", strings.Join(sorted, " "))
	}
	return strings.Join(parts, " -> ")
}
