package scenario

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-scenario/flags"
	"github.com/ethereum-optimism/infra/op-scenario/plan"
	"github.com/ethereum-optimism/infra/op-scenario/runner"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

// MockScenarioExecutor is a mock implementation of the ScenarioExecutor interface
type MockScenarioExecutor struct {
	mock.Mock
}

func (m *MockScenarioExecutor) RunAll(ctx context.Context, runID string, scenarios []plan.Scenario) *types.RunResult {
	args := m.Called(ctx, runID, scenarios)
	result := args.Get(0).(*types.RunResult)
	result.RunID = runID
	return result
}

func testServiceConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		PlanFile:   filepath.Join("testdata", "save-with-friends.yaml"),
		ToolBinary: "resim",
		WorkDir:    t.TempDir(),
		LogDir:     t.TempDir(),
		Log:        log.NewLogger(log.DiscardHandler()),
	}
}

func passingResult() *types.RunResult {
	return &types.RunResult{
		Scenarios: []*types.ScenarioResult{
			{Name: "publish_package", Setup: "fresh", Status: types.StatusPass, Package: "package_sim1xyz"},
			{
				Name:   "close_early",
				Setup:  "attach",
				Status: types.StatusPass,
				Steps: []*types.StepResult{
					{Name: "instantiate", Status: types.StatusPass, Captured: map[string]string{"nft_address": "res_2"}},
					{Name: "close_early", Status: types.StatusPass},
				},
			},
		},
		Status: types.StatusPass,
		Stats:  types.ResultStats{Total: 2, Passed: 2},
	}
}

func TestServiceStartSuccess(t *testing.T) {
	shutdown := make(chan error, 1)
	svc, err := New(context.Background(), testServiceConfig(t), "test", func(err error) { shutdown <- err })
	require.NoError(t, err)

	mockExecutor := new(MockScenarioExecutor)
	mockExecutor.On("RunAll", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(passingResult())
	svc.executor = mockExecutor
	var out bytes.Buffer
	svc.out = &out

	require.NoError(t, svc.Start(context.Background()))
	mockExecutor.AssertExpectations(t)

	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback was not called")
	}

	assert.NotEmpty(t, svc.Result().RunID)
	assert.Contains(t, out.String(), "close_early")
	assert.Contains(t, out.String(), "nft_address=res_2")

	assert.False(t, svc.Stopped())
	require.NoError(t, svc.Stop(context.Background()))
	assert.True(t, svc.Stopped())
	require.NoError(t, svc.Stop(context.Background()))
}

func TestServiceStartScenarioFailure(t *testing.T) {
	svc, err := New(context.Background(), testServiceConfig(t), "test", func(error) {
		t.Error("shutdown callback must not be called on failure")
	})
	require.NoError(t, err)

	failed := &types.RunResult{
		Scenarios: []*types.ScenarioResult{{
			Name:   "close_early",
			Setup:  "attach",
			Status: types.StatusFail,
			Error:  &runner.ToolFailureError{Command: "resim show-ledger", ExitCode: 1, Stderr: "no ledger\n"},
		}},
		Status: types.StatusFail,
		Stats:  types.ResultStats{Total: 1, Failed: 1},
	}
	mockExecutor := new(MockScenarioExecutor)
	mockExecutor.On("RunAll", mock.Anything, mock.Anything, mock.Anything).Return(failed)
	svc.executor = mockExecutor
	var out bytes.Buffer
	svc.out = &out

	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsScenarioFailureError(err))
	assert.False(t, IsRuntimeError(err))
	assert.Contains(t, out.String(), "no ledger")
}

func TestServiceSelectsScenarios(t *testing.T) {
	cfg := testServiceConfig(t)
	cfg.Scenarios = []string{"close_early"}
	svc, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)

	mockExecutor := new(MockScenarioExecutor)
	mockExecutor.On("RunAll", mock.Anything, mock.Anything, mock.MatchedBy(func(s []plan.Scenario) bool {
		return len(s) == 1 && s[0].Name == "close_early"
	})).Return(&types.RunResult{Status: types.StatusSkip})
	svc.executor = mockExecutor
	svc.out = &bytes.Buffer{}

	require.NoError(t, svc.Start(context.Background()))
	mockExecutor.AssertExpectations(t)
}

func TestServiceWritesMetricsTextfile(t *testing.T) {
	cfg := testServiceConfig(t)
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "op_scenario.prom")
	svc, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)

	mockExecutor := new(MockScenarioExecutor)
	mockExecutor.On("RunAll", mock.Anything, mock.Anything, mock.Anything).Return(passingResult())
	svc.executor = mockExecutor
	svc.out = &bytes.Buffer{}

	require.NoError(t, svc.Start(context.Background()))
	data, err := os.ReadFile(cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "op_scenario_run_duration_seconds")
}

func TestNewErrors(t *testing.T) {
	_, err := New(context.Background(), nil, "test", nil)
	require.Error(t, err)

	cfg := testServiceConfig(t)
	cfg.PlanFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(context.Background(), cfg, "test", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	cfg = testServiceConfig(t)
	cfg.Scenarios = []string{"withdraw"}
	_, err = New(context.Background(), cfg, "test", nil)
	assert.ErrorContains(t, err, "unknown scenarios: withdraw")
}

func TestServiceJournalFailureIsRuntimeError(t *testing.T) {
	cfg := testServiceConfig(t)
	// a regular file where the log directory should be
	cfg.LogDir = filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(cfg.LogDir, nil, 0644))

	svc, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)
	svc.out = &bytes.Buffer{}

	err = svc.Start(context.Background())
	require.Error(t, err)
	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.ExitCode())
}

func TestNewConfig(t *testing.T) {
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, err := NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			require.NoError(t, err)

			wantPlan, err := filepath.Abs("testdata/save-with-friends.toml")
			require.NoError(t, err)
			assert.Equal(t, wantPlan, cfg.PlanFile)
			assert.True(t, filepath.IsAbs(cfg.WorkDir))
			assert.True(t, filepath.IsAbs(cfg.LogDir))
			assert.Equal(t, "resim", cfg.ToolBinary)
			assert.Equal(t, []string{"close_early"}, cfg.Scenarios)
			assert.Equal(t, cfg.WorkDir, cfg.LedgerDir)
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"app", "--plan", "testdata/save-with-friends.toml", "--scenario", "close_early"}))
}

func TestNewConfigMissingPlan(t *testing.T) {
	app := &cli.App{
		Flags: []cli.Flag{&cli.StringFlag{Name: flags.Plan.Name}},
		Action: func(ctx *cli.Context) error {
			_, err := NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			return err
		},
	}
	err := app.Run([]string{"app"})
	assert.ErrorContains(t, err, "missing required flags")
}

func TestNewConfigLedgerDir(t *testing.T) {
	ledgerDir := t.TempDir()
	app := &cli.App{
		Flags: []cli.Flag{flags.Plan, flags.WorkDir, flags.LedgerDir, flags.LogDir},
		Action: func(ctx *cli.Context) error {
			cfg, err := NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			require.NoError(t, err)
			assert.Equal(t, ledgerDir, cfg.LedgerDir)
			assert.NotEqual(t, cfg.WorkDir, cfg.LedgerDir)
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"app", "--plan", "testdata/save-with-friends.yaml", "--ledger-dir", ledgerDir}))
}

func TestServiceLockDir(t *testing.T) {
	cfg := testServiceConfig(t)
	svc, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)
	assert.Equal(t, cfg.WorkDir, svc.lockDir())

	cfg.LedgerDir = t.TempDir()
	assert.Equal(t, cfg.LedgerDir, svc.lockDir())
}
