// Command weft compiles and runs workflow definitions from the terminal.
//
// Usage:
//
//	weft validate workflow.yaml              # compile only, report errors
//	weft run workflow.yaml                   # execute with defaults
//	weft run --config weft.yaml \
//	    --input topic="go concurrency" workflow.yaml
//	weft version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/weftflow/weft/config"
	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/llm/adapters/ollama"
	"github.com/weftflow/weft/llm/adapters/tgi"
	"github.com/weftflow/weft/llm/adapters/vllm"
	"github.com/weftflow/weft/workflow"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "version":
		fmt.Printf("weft %s (%s)\n", version, gitCommit)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  weft validate <workflow.yaml>
  weft run [--config weft.yaml] [--input k=v ...] <workflow.yaml>
  weft version`)
}

// inputFlags collects repeated --input key=value pairs.
type inputFlags map[string]string

func (f inputFlags) String() string { return fmt.Sprintf("%v", map[string]string(f)) }

func (f inputFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("input %q is not key=value", v)
	}
	f[key] = value
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("validate takes exactly one definition file")
	}

	def, err := workflow.LoadDefinitionFile(fs.Arg(0))
	if err != nil {
		return err
	}

	plan, err := workflow.Compile(def, defaultRegistry(nil, zap.NewNop()))
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d steps, %d layers\n", def.Name, plan.Len(), len(plan.Layers()))
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "host config file")
	inputs := inputFlags{}
	fs.Var(inputs, "input", "top-level input variable, key=value, repeatable")
	asJSON := fs.Bool("json", false, "print the full execution record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run takes exactly one definition file")
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	def, err := workflow.LoadDefinitionFile(fs.Arg(0))
	if err != nil {
		return err
	}

	reg := defaultRegistry(cfg, logger)
	plan, err := workflow.Compile(def, reg)
	if err != nil {
		return err
	}

	opts := []workflow.Option{workflow.WithLogger(logger)}
	if cfg.Engine.RateLimitRPS > 0 {
		opts = append(opts, workflow.WithRateLimit(rate.Limit(cfg.Engine.RateLimitRPS), cfg.Engine.RateLimitBurst))
	}
	engine := workflow.NewEngine(reg, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, runErr := engine.Execute(ctx, plan, &workflow.RunContext{
		Inputs:    inputs,
		Providers: cfg.ProviderConns(os.Getenv),
		Secrets:   secretsFromEnv(def.Secrets),
	})
	if rec == nil {
		return runErr
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		printRecord(rec)
	}
	return runErr
}

// secretsFromEnv resolves each declared secret from the environment variable
// of the same name, uppercased.
func secretsFromEnv(names []string) map[string]string {
	secrets := make(map[string]string, len(names))
	for _, name := range names {
		secrets[name] = os.Getenv(strings.ToUpper(name))
	}
	return secrets
}

// defaultRegistry registers the built-in adapters, wired to any provider
// section present in cfg.
func defaultRegistry(cfg *config.Config, logger *zap.Logger) *llm.Registry {
	provider := func(id string) (baseURL string) {
		if cfg == nil {
			return ""
		}
		return cfg.Providers[id].BaseURL
	}

	reg := llm.NewRegistry()
	reg.Register(ollama.Name, ollama.New(ollama.Config{BaseURL: provider(ollama.Name)}, logger))
	reg.Register(vllm.Name, vllm.New(vllm.Config{BaseURL: provider(vllm.Name)}, logger))
	reg.Register(tgi.Name, tgi.New(tgi.Config{BaseURL: provider(tgi.Name)}, logger))
	return reg
}

func printRecord(rec *workflow.Record) {
	fmt.Printf("run %s: %s in %s (%d steps executed)\n",
		rec.RunID, rec.Outcome, rec.Duration.Round(time.Millisecond), rec.StepsExecuted)
	for _, id := range rec.CompletionOrder {
		sr := rec.Results[id]
		line := fmt.Sprintf("  %-20s %s", id, sr.Outcome)
		if sr.Reason != "" {
			line += "  (" + sr.Reason + ")"
		}
		fmt.Println(line)
		if sr.Outcome == workflow.OutcomeCompleted && sr.Output != "" {
			fmt.Println(indent(sr.Output, "      "))
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
