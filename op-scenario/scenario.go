// Package scenario runs scenario plans against the external ledger tool.
//
// Each scenario builds its fixture, derives the step environment from it and
// runs its steps in order, forwarding values captured from one step's output
// into the environment of the next. Scenarios never run concurrently.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-scenario/exitcodes"
	"github.com/ethereum-optimism/infra/op-scenario/ledger"
	"github.com/ethereum-optimism/infra/op-scenario/logging"
	"github.com/ethereum-optimism/infra/op-scenario/metrics"
	"github.com/ethereum-optimism/infra/op-scenario/plan"
	"github.com/ethereum-optimism/infra/op-scenario/runner"
	"github.com/ethereum-optimism/infra/op-scenario/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Service implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Service{}

// Service runs the selected scenarios of a plan once and reports the result.
type Service struct {
	ctx       context.Context
	config    *Config
	version   string
	scenarios []plan.Scenario
	executor  ScenarioExecutor
	result    *types.RunResult
	out       io.Writer

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New loads and validates the plan. Nothing touches the ledger until Start.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Service, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating scenario service with config",
		"plan", config.PlanFile,
		"scenarios", config.Scenarios,
		"toolBinary", config.ToolBinary,
		"workDir", config.WorkDir,
		"ledgerDir", config.LedgerDir,
		"logDir", config.LogDir)

	p, err := plan.Load(config.PlanFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	scenarios, err := p.Select(config.Scenarios)
	if err != nil {
		return nil, fmt.Errorf("failed to select scenarios: %w", err)
	}
	config.Log.Info("Loaded scenario plan", "plan", config.PlanFile, "scenarios", len(scenarios))

	return &Service{
		ctx:              ctx,
		config:           config,
		version:          version,
		scenarios:        scenarios,
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the selected scenarios once.
// Start implements the cliapp.Lifecycle interface.
func (s *Service) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.ctx = ctx
	s.running.Store(true)
	s.config.Log.Info("Starting op-scenario", "version", s.version)

	if err := s.run(ctx); err != nil {
		s.config.Log.Error("Runtime error running scenarios", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	if s.result.Status == types.StatusFail {
		s.config.Log.Warn("Scenario run completed with failures, returning exit code 1")
		return NewScenarioFailureError(s.result.String())
	}

	go func() {
		s.shutdownCallback(nil)
	}()
	return nil
}

func (s *Service) run(ctx context.Context) error {
	runID := uuid.New().String()

	journal, err := logging.NewJournal(s.config.LogDir, runID)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create journal: %w", err))
	}
	defer func() {
		if err := journal.Close(); err != nil {
			s.config.Log.Error("Failed to close journal", "error", err)
		}
	}()

	executor := s.executor
	if executor == nil {
		executor, err = s.newExecutor(journal)
		if err != nil {
			return NewRuntimeError(err)
		}
	}

	s.config.Log.Info("Running scenarios", "run_id", journal.GetRunID(), "journal", journal.GetDirectory())
	result := executor.RunAll(ctx, runID, s.scenarios)
	s.result = result

	printResultsTable(s.out, result)
	fmt.Fprintln(s.out, result.String())

	metrics.RecordRun(runID, result.Status, result.Duration)
	if err := metrics.WriteTextfile(s.config.MetricsTextfile); err != nil {
		s.config.Log.Error("Failed to write metrics", "error", err)
	}
	s.config.Log.Info("Scenario run completed", "run_id", runID, "status", result.Status, "duration", types.FormatDuration(result.Duration))
	return nil
}

func (s *Service) newExecutor(journal *logging.Journal) (*Executor, error) {
	invoker := runner.NewProcessRunner(runner.Config{
		WorkDir: s.config.WorkDir,
		Log:     s.config.Log,
		Journal: journal,
	})
	tool, err := ledger.New(s.config.ToolBinary, invoker)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool: %w", err)
	}
	return NewExecutor(ExecutorConfig{
		Tool:    tool,
		Log:     s.config.Log,
		Journal: journal,
		LockDir: s.lockDir(),
	})
}

// lockDir is where the ledger lock lives: the ledger directory when one is
// configured, else the directory the tool runs in.
func (s *Service) lockDir() string {
	if s.config.LedgerDir != "" {
		return s.config.LedgerDir
	}
	return s.config.WorkDir
}

// Stop implements the cliapp.Lifecycle interface.
func (s *Service) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping op-scenario")
	if !s.running.Load() {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)
	s.config.Log.Info("op-scenario stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (s *Service) Stopped() bool {
	return !s.running.Load()
}

// Result returns the result of the last run, or nil before Start.
func (s *Service) Result() *types.RunResult {
	return s.result
}
