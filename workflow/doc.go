// Package workflow compiles step-graph definitions into immutable plans and
// executes them in dependency order.
//
// A Definition is authored once, compiled once with Compile, and the
// resulting Plan is reused across runs. Execution is driven by an Engine:
// independent steps run concurrently up to a configurable ceiling, steps on
// the same dependency chain run strictly in order, and a failing step skips
// its downstream dependents while independent branches drain to completion.
package workflow
