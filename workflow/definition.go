package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/weftflow/weft/llm/retry"
	"github.com/weftflow/weft/types"
)

// Determinism is a workflow-level contract on how reproducible a run must be
// across executions with identical inputs.
type Determinism string

const (
	// DeterminismPure requires the same step ordering on every run. The
	// engine serializes execution regardless of the configured concurrency.
	DeterminismPure Determinism = "pure"
	// DeterminismBestEffort allows independent steps to run concurrently.
	DeterminismBestEffort Determinism = "best-effort"
)

// RetryConfig is the serializable shape of a step retry strategy.
type RetryConfig struct {
	MaxRetries   int            `yaml:"max_retries" json:"maxRetries"`
	InitialDelay types.Duration `yaml:"initial_delay" json:"initialDelay"`
	MaxDelay     types.Duration `yaml:"max_delay" json:"maxDelay"`
	Multiplier   float64        `yaml:"multiplier" json:"multiplier"`
}

// Policy converts the config into a retry policy, filling unset fields from
// the default.
func (c *RetryConfig) Policy() *retry.Policy {
	p := retry.DefaultPolicy()
	if c == nil {
		return p
	}
	p.MaxRetries = c.MaxRetries
	if c.InitialDelay > 0 {
		p.InitialDelay = c.InitialDelay.Std()
	}
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay.Std()
	}
	if c.Multiplier >= 1.0 {
		p.Multiplier = c.Multiplier
	}
	return p
}

// Schema is a JSON schema document embedded in a step config. In YAML it may
// be written either as a JSON string or as a nested mapping.
type Schema json.RawMessage

func (s Schema) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	*s = append((*s)[:0], data...)
	return nil
}

func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	if str, ok := v.(string); ok {
		if !json.Valid([]byte(str)) {
			return fmt.Errorf("schema string is not valid JSON")
		}
		*s = Schema(str)
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("schema is not expressible as JSON: %w", err)
	}
	*s = Schema(data)
	return nil
}

// StepConfig holds the per-step generation parameters.
type StepConfig struct {
	// Provider names the registered adapter that serves this step.
	Provider string `yaml:"provider" json:"provider"`
	// Model is the provider-scoped model identifier.
	Model string `yaml:"model" json:"model"`
	// Prompt is the prompt template. It may reference top-level inputs as
	// {{name}} and dependency outputs as {{stepId.output}}.
	Prompt string `yaml:"prompt" json:"prompt"`
	// ResponseFormat is "text" (default) or "json". A "json" step runs
	// through the structured repair pipeline.
	ResponseFormat string `yaml:"response_format" json:"responseFormat,omitempty"`
	// Schema optionally constrains a "json" step on backends with guided
	// decoding.
	Schema Schema `yaml:"schema" json:"schema,omitempty"`
	// MaxTokens caps the completion length. Zero leaves it to the backend.
	MaxTokens int `yaml:"max_tokens" json:"maxTokens,omitempty"`
	// Temperature is the sampling temperature.
	Temperature float32 `yaml:"temperature" json:"temperature,omitempty"`
}

// WantsJSON reports whether the step requested structured output.
func (c StepConfig) WantsJSON() bool { return c.ResponseFormat == "json" }

// Step is one unit of work in a workflow.
type Step struct {
	// ID must be unique within the workflow.
	ID string `yaml:"id" json:"id"`
	// Type selects the handler. The built-in type is "text-generation",
	// which an empty Type also selects; further types are registered at
	// compile time.
	Type string `yaml:"type" json:"type"`
	// Config holds the generation parameters.
	Config StepConfig `yaml:"config" json:"config"`
	// Dependencies lists the step ids this step consumes. Prompt templates
	// may only reference outputs of ids listed here.
	Dependencies []string `yaml:"dependencies" json:"dependencies,omitempty"`
}

// effectiveType returns the step's handler type; an empty type resolves to
// the built-in text-generation handler.
func (s *Step) effectiveType() string {
	if s.Type == "" {
		return StepTypeTextGeneration
	}
	return s.Type
}

// Definition is an authored workflow. It is immutable once compiled.
type Definition struct {
	Name        string      `yaml:"name" json:"name"`
	Version     string      `yaml:"version" json:"version,omitempty"`
	Determinism Determinism `yaml:"determinism" json:"determinism,omitempty"`
	// Secrets declares the secret names a run must supply.
	Secrets []string `yaml:"secrets" json:"secrets,omitempty"`
	// Timeout bounds the whole run. Zero means no global timeout.
	Timeout types.Duration `yaml:"timeout" json:"timeout,omitempty"`
	// Concurrency caps in-flight adapter calls. Zero or one serializes;
	// a pure workflow always serializes.
	Concurrency int          `yaml:"concurrency" json:"concurrency,omitempty"`
	Retry       *RetryConfig `yaml:"retry" json:"retry,omitempty"`
	Steps       []Step       `yaml:"steps" json:"steps"`
}

// StepTypeTextGeneration is the built-in step type.
const StepTypeTextGeneration = "text-generation"

// ParseDefinition decodes a YAML or JSON workflow definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, types.Errorf(types.ErrCompile, "parse definition: %v", err).WithCause(err)
	}
	if def.Determinism == "" {
		def.Determinism = DeterminismBestEffort
	}
	if def.Determinism != DeterminismPure && def.Determinism != DeterminismBestEffort {
		return nil, types.Errorf(types.ErrCompile, "unknown determinism grade %q", def.Determinism)
	}
	for i := range def.Steps {
		if def.Steps[i].Type == "" {
			def.Steps[i].Type = StepTypeTextGeneration
		}
	}
	return &def, nil
}

// LoadDefinition reads and parses a definition from r.
func LoadDefinition(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return ParseDefinition(data)
}

// LoadDefinitionFile reads and parses a definition from path.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	return ParseDefinition(data)
}

// step lookup by id, nil when absent.
func (d *Definition) step(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}
