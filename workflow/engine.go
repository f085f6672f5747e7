package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/weftflow/weft/internal/metrics"
	"github.com/weftflow/weft/llm"
	"github.com/weftflow/weft/llm/retry"
	"github.com/weftflow/weft/structured"
	"github.com/weftflow/weft/template"
	"github.com/weftflow/weft/types"
)

// Engine executes compiled plans. One engine serves many concurrent runs;
// all per-run state lives on the Execute stack.
type Engine struct {
	registry *llm.Registry
	logger   *zap.Logger
	metrics  *metrics.Collector
	limiter  *rate.Limiter
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithRateLimit throttles adapter dispatches across all steps of all runs.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(e *Engine) { e.limiter = rate.NewLimiter(limit, burst) }
}

// NewEngine creates an engine over a registry. The registry must be fully
// populated before the first run; it is treated as read-only afterwards.
func NewEngine(reg *llm.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e
}

// ceiling returns the effective concurrency limit for a definition. A pure
// workflow always serializes so step ordering is reproducible.
func ceiling(def *Definition) int {
	if def.Determinism == DeterminismPure {
		return 1
	}
	if def.Concurrency < 1 {
		return 1
	}
	return def.Concurrency
}

// Execute runs a compiled plan. The returned Record is non-nil whenever any
// step ran, partial records included: a failed or timed-out run returns both
// the record and the run-level error. Only pre-run validation fails with a
// bare error.
func (e *Engine) Execute(ctx context.Context, plan *Plan, rc *RunContext) (*Record, error) {
	if plan == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "plan is nil")
	}
	def := plan.Definition()
	if err := rc.validateSecrets(def.Secrets); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := e.logger.With(
		zap.String("run_id", runID),
		zap.String("workflow", def.Name),
	)

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if def.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, def.Timeout.Std())
	}
	defer cancel()

	policy := def.Retry.Policy()
	retryer := retry.NewBackoffRetryer(policy, logger)
	pipeline := structured.NewPipeline(policy, logger)

	maxInFlight := ceiling(def)
	logger.Info("run starting",
		zap.Int("steps", plan.Len()),
		zap.Int("concurrency", maxInFlight),
		zap.String("plan", describePlan(plan)),
	)

	record := &Record{
		RunID:     runID,
		Workflow:  def.Name,
		Inputs:    rc.inputs(),
		Results:   make(map[string]*StepResult, plan.Len()),
		StartedAt: time.Now(),
	}

	// Dispatcher state. Everything below is owned by this goroutine; step
	// goroutines communicate only through the completions channel.
	pending := make(map[string]int, plan.Len())
	var ready []string
	for _, id := range plan.Order() {
		n := len(dedup(plan.Step(id).Dependencies))
		pending[id] = n
		if n == 0 {
			ready = append(ready, id)
		}
	}

	completions := make(chan *StepResult)
	inFlight := 0
	stopNew := false
	abortReason := ""

	write := func(res *StepResult) {
		record.Results[res.StepID] = res
		record.CompletionOrder = append(record.CompletionOrder, res.StepID)
		record.Usage.Add(res.Usage)
		if e.metrics != nil {
			e.metrics.ObserveStep(def.Name, string(res.Outcome))
		}
	}

	// markSkipped records every transitive dependent of id that has no
	// result yet as skipped.
	var markSkipped func(id, failedID string)
	markSkipped = func(id, failedID string) {
		for _, dep := range plan.Dependents(id) {
			if _, has := record.Results[dep]; has {
				continue
			}
			now := time.Now()
			write(&StepResult{
				StepID:     dep,
				Outcome:    OutcomeSkipped,
				Reason:     "dependency " + failedID + " failed",
				StartedAt:  now,
				FinishedAt: now,
			})
			markSkipped(dep, failedID)
		}
	}

	handle := func(res *StepResult) {
		inFlight--
		if !stopNew && res.Outcome == OutcomeAborted {
			// The step observed the cut-off before the dispatcher's select
			// did; adopt it so dependents are drained as aborted too.
			stopNew = true
			if runCtx.Err() == context.DeadlineExceeded {
				abortReason = "run timed out"
			} else {
				abortReason = "run canceled"
			}
		}
		if stopNew {
			// The run was cut off while this call was in flight; its
			// outcome is discarded.
			write(&StepResult{
				StepID:     res.StepID,
				Outcome:    OutcomeAborted,
				Reason:     abortReason,
				StartedAt:  res.StartedAt,
				FinishedAt: res.FinishedAt,
			})
			return
		}
		write(res)
		switch res.Outcome {
		case OutcomeCompleted:
			record.StepsExecuted++
			for _, dep := range plan.Dependents(res.StepID) {
				if _, has := record.Results[dep]; has {
					continue
				}
				pending[dep]--
				if pending[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		case OutcomeFailed:
			record.StepsExecuted++
			if record.FailedStep == "" {
				record.FailedStep = res.StepID
			}
			logger.Warn("step failed, skipping dependents",
				zap.String("step", res.StepID),
				zap.String("reason", res.Reason),
			)
			markSkipped(res.StepID, res.StepID)
		}
	}

	for len(record.Results) < plan.Len() {
		if !stopNew {
			for inFlight < maxInFlight && len(ready) > 0 {
				id := ready[0]
				ready = ready[1:]
				inFlight++
				e.startStep(runCtx, plan, rc, id, retryer, pipeline, logger, record, completions)
			}
		}
		if inFlight == 0 {
			break
		}
		if stopNew {
			handle(<-completions)
			continue
		}
		select {
		case res := <-completions:
			handle(res)
		case <-runCtx.Done():
			stopNew = true
			if runCtx.Err() == context.DeadlineExceeded {
				abortReason = "run timed out"
			} else {
				abortReason = "run canceled"
			}
			logger.Warn("run cut off, draining in-flight steps",
				zap.String("reason", abortReason),
				zap.Int("in_flight", inFlight),
			)
		}
	}

	// Steps that never started under a cut-off run.
	if stopNew {
		for _, id := range plan.Order() {
			if _, has := record.Results[id]; !has {
				now := time.Now()
				write(&StepResult{
					StepID:     id,
					Outcome:    OutcomeAborted,
					Reason:     abortReason,
					StartedAt:  now,
					FinishedAt: now,
				})
			}
		}
	}

	record.Duration = time.Since(record.StartedAt)

	var runErr error
	switch {
	case stopNew && runCtx.Err() == context.DeadlineExceeded:
		record.Outcome = RunTimedOut
		runErr = types.Errorf(types.ErrTimeout, "run exceeded the %s global timeout", def.Timeout)
	case stopNew:
		record.Outcome = RunCanceled
		runErr = types.NewError(types.ErrCanceled, "run canceled by caller").WithCause(ctx.Err())
	case record.FailedStep != "":
		record.Outcome = RunFailed
		failed := record.Results[record.FailedStep]
		runErr = types.Errorf(types.ErrStepFailed, "step %q failed: %s", record.FailedStep, failed.Reason).
			WithStep(record.FailedStep).WithCause(failed.Err)
	default:
		record.Outcome = RunCompleted
	}

	if e.metrics != nil {
		e.metrics.ObserveRun(def.Name, string(record.Outcome), record.Duration)
	}
	logger.Info("run finished",
		zap.String("outcome", string(record.Outcome)),
		zap.Int("steps_executed", record.StepsExecuted),
		zap.Duration("duration", record.Duration),
	)

	return record, runErr
}

// startStep launches one step goroutine. The step runs under a context that
// survives run cancellation so an in-flight adapter call is never forcibly
// interrupted; cancellation is enforced by the dispatcher instead, which
// discards late results.
func (e *Engine) startStep(
	runCtx context.Context,
	plan *Plan,
	rc *RunContext,
	id string,
	retryer retry.Retryer,
	pipeline *structured.Pipeline,
	logger *zap.Logger,
	record *Record,
	completions chan<- *StepResult,
) {
	step := plan.Step(id)
	stepLogger := logger.With(zap.String("step", id))

	// Dependency outputs are snapshotted before launch; the results map is
	// owned by the dispatcher and must not be read concurrently.
	outputs := make(map[string]string, len(step.Dependencies))
	for _, dep := range step.Dependencies {
		if sr, ok := record.Results[dep]; ok {
			outputs[dep] = sr.Output
		}
	}

	stepCtx := context.WithoutCancel(runCtx)

	go func() {
		res := &StepResult{StepID: id, StartedAt: time.Now()}

		fail := func(err error) {
			res.FinishedAt = time.Now()
			res.Outcome = OutcomeFailed
			res.Err = err
			res.Reason = err.Error()
			completions <- res
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(runCtx); err != nil {
				if runCtx.Err() != nil {
					res.FinishedAt = time.Now()
					res.Outcome = OutcomeAborted
					res.Reason = "run cut off before dispatch"
					completions <- res
					return
				}
				// Wait refuses immediately when the run deadline cannot
				// cover the token wait. The run is still live, so this is
				// a step failure, not a cut-off.
				fail(types.Errorf(types.ErrRateLimited,
					"rate limiter cannot admit the call before the run deadline: %v", err).
					WithStep(id).WithCause(err))
				return
			}
		}

		// Custom step types may run without a provider; the adapter is then
		// left nil and the handler decides whether it needs one.
		var adapter llm.Adapter
		if step.Config.Provider != "" {
			var err error
			adapter, err = e.registry.Get(step.Config.Provider)
			if err != nil {
				fail(err)
				return
			}
		}

		prompt := plan.Template(id).Resolve(template.Env{
			Inputs:  rc.inputs(),
			Outputs: outputs,
		}, stepLogger)

		conn := rc.conn(step.Config.Provider)
		if conn.APIKey == "" && rc != nil {
			// Credential indirection: a secret named "<provider>_api_key"
			// supplies the bearer token when the connection carries none.
			conn.APIKey = rc.Secrets[step.Config.Provider+"_api_key"]
		}

		stepLogger.Debug("step running",
			zap.String("provider", step.Config.Provider),
			zap.String("model", step.Config.Model),
		)

		start := time.Now()
		out, err := plan.Handler(step.effectiveType()).Execute(stepCtx, &StepRequest{
			Step:     step,
			Prompt:   prompt,
			Adapter:  adapter,
			Conn:     conn,
			Retryer:  retryer,
			Pipeline: pipeline,
			Logger:   stepLogger,
		})
		if e.metrics != nil {
			e.metrics.ObserveAdapterCall(step.Config.Provider, time.Since(start))
		}
		if err != nil {
			fail(err)
			return
		}
		if e.metrics != nil {
			e.metrics.ObserveTokens(step.Config.Provider, out.Usage.PromptTokens, out.Usage.CompletionTokens)
		}

		res.FinishedAt = time.Now()
		res.Outcome = OutcomeCompleted
		res.Output = out.Text
		res.Structured = out.Structured
		res.Usage = out.Usage
		completions <- res
	}()
}

// ExecuteBatch runs one plan over many run contexts, at most parallel runs
// at a time (values below 1 run everything concurrently). Records are
// returned in input order. The first run-level error is returned alongside
// the records; remaining runs still complete.
func (e *Engine) ExecuteBatch(ctx context.Context, plan *Plan, rcs []*RunContext, parallel int) ([]*Record, error) {
	records := make([]*Record, len(rcs))

	// Sibling runs never cancel each other; a failed run is reported, not
	// propagated.
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	var (
		mu       sync.Mutex
		firstErr error
	)
	for i, rc := range rcs {
		i, rc := i, rc
		g.Go(func() error {
			rec, err := e.Execute(ctx, plan, rc)
			mu.Lock()
			records[i] = rec
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return records, firstErr
}

// dedup returns ids with duplicates removed, order preserved.
func dedup(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
