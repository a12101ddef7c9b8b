package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-scenario/extract"
	"github.com/ethereum-optimism/infra/op-scenario/fixture"
	"github.com/ethereum-optimism/infra/op-scenario/ledger"
	"github.com/ethereum-optimism/infra/op-scenario/logging"
	"github.com/ethereum-optimism/infra/op-scenario/metrics"
	"github.com/ethereum-optimism/infra/op-scenario/plan"
	"github.com/ethereum-optimism/infra/op-scenario/runner"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

// ScenarioExecutor is responsible for running scenarios.
type ScenarioExecutor interface {
	RunAll(ctx context.Context, runID string, scenarios []plan.Scenario) *types.RunResult
}

// ExecutorConfig holds configuration for creating a new Executor
type ExecutorConfig struct {
	Tool    *ledger.Tool
	Log     log.Logger
	Journal *logging.Journal // Optional; receives a summary per scenario
	LockDir string           // Directory holding the ledger lock; empty disables locking
}

// Executor runs scenarios one after another against a single ledger.
type Executor struct {
	tool    *ledger.Tool
	log     log.Logger
	journal *logging.Journal
	lockDir string
	tracer  trace.Tracer
}

var _ ScenarioExecutor = (*Executor)(nil)

// NewExecutor creates a new Executor
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Tool == nil {
		return nil, errors.New("tool is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Executor{
		tool:    cfg.Tool,
		log:     cfg.Log,
		journal: cfg.Journal,
		lockDir: cfg.LockDir,
		tracer:  otel.Tracer("scenario executor"),
	}, nil
}

// RunAll runs every scenario in order. A failing scenario does not stop the
// ones after it; each builds its own fixture.
func (e *Executor) RunAll(ctx context.Context, runID string, scenarios []plan.Scenario) *types.RunResult {
	start := time.Now()
	result := &types.RunResult{RunID: runID}

	for _, s := range scenarios {
		if ctx.Err() != nil {
			e.log.Warn("Run interrupted, skipping remaining scenarios", "scenario", s.Name, "error", ctx.Err())
			sr := &types.ScenarioResult{
				Name:   s.Name,
				Setup:  string(s.Setup),
				Status: types.StatusSkip,
				Error:  ctx.Err(),
			}
			result.Scenarios = append(result.Scenarios, sr)
			result.Stats.Add(sr.Status)
			metrics.RecordScenario(runID, s.Name, sr.Status)
			continue
		}
		sr := e.RunScenario(ctx, runID, s)
		result.Scenarios = append(result.Scenarios, sr)
		result.Stats.Add(sr.Status)
	}

	result.Status = result.DetermineStatus()
	result.Duration = time.Since(start)
	return result
}

// RunScenario builds the scenario's fixture and runs its steps. The first
// failing step aborts the scenario; there are no retries.
func (e *Executor) RunScenario(ctx context.Context, runID string, s plan.Scenario) *types.ScenarioResult {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("scenario %s", s.Name))
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("setup", string(s.Setup)),
	)

	start := time.Now()
	result := &types.ScenarioResult{
		Name:  s.Name,
		Setup: string(s.Setup),
	}
	e.log.Info("Running scenario", "scenario", s.Name, "setup", s.Setup, "steps", len(s.Steps))

	err := e.runScenario(ctx, s, result)

	result.Duration = time.Since(start)
	if err != nil {
		result.Status = types.StatusFail
		result.Error = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "scenario failed")
		metrics.RecordErrorDetails("scenario", scenarioErrorClass(err))
		e.log.Error("Scenario failed", "scenario", s.Name, "error", err)
	} else {
		result.Status = types.StatusPass
		e.log.Info("Scenario passed", "scenario", s.Name, "duration", result.Duration)
	}
	metrics.RecordScenario(runID, s.Name, result.Status)

	if e.journal != nil {
		if err := e.journal.RecordScenario(result); err != nil {
			e.log.Error("Failed to record scenario", "scenario", s.Name, "error", err)
		}
	}
	return result
}

func (e *Executor) runScenario(ctx context.Context, s plan.Scenario, result *types.ScenarioResult) error {
	if e.lockDir != "" {
		lock, err := fixture.Acquire(e.lockDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				e.log.Error("Failed to release ledger lock", "error", err)
			}
		}()
	}

	f, err := e.buildFixture(ctx, s)
	if err != nil {
		return err
	}
	result.Package = f.Package()

	if len(s.Steps) == 0 {
		return nil
	}

	env, err := f.Env(ctx)
	if err != nil {
		return fmt.Errorf("failed to build environment: %w", err)
	}

	for _, step := range s.Steps {
		sr, next, err := e.runStep(ctx, step, env)
		result.Steps = append(result.Steps, sr)
		if err != nil {
			result.Env = env
			return fmt.Errorf("step %s: %w", sr.Name, err)
		}
		env = next
	}
	result.Env = env
	return nil
}

func (e *Executor) buildFixture(ctx context.Context, s plan.Scenario) (*fixture.Fixture, error) {
	cfg := fixture.Config{
		Tool:       e.tool,
		Log:        e.log.New("scenario", s.Name),
		PackageDir: s.PackageDir,
	}
	switch s.Setup {
	case fixture.SetupFresh:
		return fixture.New(ctx, cfg)
	case fixture.SetupAttach:
		return fixture.Attach(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown setup %q", s.Setup)
	}
}

// runStep invokes one step with env and returns env extended by the step's
// captures. env itself is never modified. Captures are all-or-nothing: if
// any of them fails, no key is added.
func (e *Executor) runStep(ctx context.Context, step plan.Step, env types.Env) (*types.StepResult, types.Env, error) {
	start := time.Now()
	sr := &types.StepResult{
		Name: step.DisplayName(),
		Env:  env.Clone(),
	}
	fail := func(err error) (*types.StepResult, types.Env, error) {
		sr.Status = types.StatusFail
		sr.Error = err
		sr.Duration = time.Since(start)
		return sr, env, err
	}

	var (
		out string
		err error
	)
	if step.Manifest != "" {
		sr.Command, _ = e.tool.CommandLine(ledger.RunCommand, step.Manifest)
		out, err = e.tool.Run(ctx, step.Manifest, env)
	} else {
		fields := strings.Fields(step.Command)
		if len(fields) == 0 {
			return fail(errors.New("empty command"))
		}
		sr.Command, _ = e.tool.CommandLine(fields[0], fields[1:]...)
		out, err = e.tool.Exec(ctx, env, fields[0], fields[1:]...)
	}
	if err != nil {
		return fail(err)
	}

	captured := make(types.Env, len(step.Captures))
	for _, c := range step.Captures {
		v, err := c.Apply(out)
		if err != nil {
			return fail(fmt.Errorf("capture %s: %w", c.Key, err))
		}
		captured[c.Key] = v
	}

	sr.Captured = captured
	sr.Status = types.StatusPass
	sr.Duration = time.Since(start)
	e.log.Info("Step passed", "step", sr.Name, "captured", len(captured), "duration", sr.Duration)
	return sr, env.Merge(captured), nil
}

// scenarioErrorClass extends runner.ErrorClass with the failures that
// happen between invocations.
func scenarioErrorClass(err error) string {
	switch {
	case errors.Is(err, fixture.ErrLedgerBusy):
		return "ledger_busy"
	case errors.Is(err, fixture.ErrNotEnoughActors):
		return "not_enough_actors"
	case errors.Is(err, extract.ErrMalformedPattern):
		return "malformed_pattern"
	case errors.Is(err, extract.ErrNoMatch):
		return "no_match"
	case errors.Is(err, ledger.ErrInvalidArgument):
		return "invalid_argument"
	}
	return runner.ErrorClass(err)
}
