// Package weft provides a top-level convenience entry point for compiling
// and running workflows with minimal boilerplate.
//
// Usage:
//
//	import "github.com/weftflow/weft"
//
//	reg := weft.NewRegistry()
//	reg.Register(ollama.Name, ollama.New(ollama.Config{}, logger))
//
//	plan, err := weft.Compile(def, reg)
//	record, err := weft.Execute(ctx, plan, &weft.RunContext{
//		Inputs: map[string]string{"topic": "go concurrency"},
//	})
//
// This is a thin wrapper around [workflow.Compile] and [workflow.Engine];
// use the workflow package directly when you need engine options.
package weft

import (
	"context"

	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/workflow"
)

// Re-exported core types so simple callers never need deeper imports.
type (
	// Definition is an authored workflow.
	Definition = workflow.Definition
	// Plan is a compiled workflow.
	Plan = workflow.Plan
	// RunContext is the per-run environment.
	RunContext = workflow.RunContext
	// Record is the outcome of one run.
	Record = workflow.Record
	// Registry maps provider ids to adapters.
	Registry = llm.Registry
)

// NewRegistry creates an empty adapter registry. Register every provider
// before the first Compile or Execute that names it.
func NewRegistry() *Registry { return llm.NewRegistry() }

// Compile validates a definition against a registry and produces a reusable
// plan.
func Compile(def *Definition, reg *Registry, opts ...workflow.CompileOption) (*Plan, error) {
	return workflow.Compile(def, reg, opts...)
}

// Execute runs a compiled plan on a fresh single-use engine. The registry
// the plan was compiled against serves the run.
func Execute(ctx context.Context, plan *Plan, rc *RunContext, opts ...workflow.Option) (*Record, error) {
	return workflow.NewEngine(plan.Registry(), opts...).Execute(ctx, plan, rc)
}

// LoadDefinitionFile reads and parses a YAML or JSON workflow definition.
func LoadDefinitionFile(path string) (*Definition, error) {
	return workflow.LoadDefinitionFile(path)
}
