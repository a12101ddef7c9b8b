package scenario

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-scenario/flags"
	"github.com/ethereum-optimism/infra/op-scenario/ledger"
)

// Config holds the application configuration
type Config struct {
	PlanFile        string   // Scenario plan (.yaml, .yml or .toml)
	Scenarios       []string // Scenarios to run; empty runs the whole plan
	ToolBinary      string   // Ledger tool executable
	WorkDir         string   // Directory the tool runs in
	LedgerDir       string   // Directory holding the ledger lock; defaults to WorkDir
	LogDir          string   // Directory to store the invocation journal
	MetricsTextfile string   // Optional node-exporter textfile written after the run
	Log             log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile := ctx.String(flags.Plan.Name)
	if planFile == "" {
		return nil, errors.New("plan file is required")
	}
	absPlan, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan file '%s': %w", planFile, err)
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		workDir = "."
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}

	absLedgerDir := absWorkDir
	if ledgerDir := ctx.String(flags.LedgerDir.Name); ledgerDir != "" {
		absLedgerDir, err = filepath.Abs(ledgerDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for ledger directory '%s': %w", ledgerDir, err)
		}
	}

	// Get log directory, default to "logs" if not specified
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	absLogDir, err := filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	toolBinary := ctx.String(flags.ToolBinary.Name)
	if toolBinary == "" {
		toolBinary = ledger.DefaultBinary
	}

	return &Config{
		PlanFile:        absPlan,
		Scenarios:       ctx.StringSlice(flags.Scenarios.Name),
		ToolBinary:      toolBinary,
		WorkDir:         absWorkDir,
		LedgerDir:       absLedgerDir,
		LogDir:          absLogDir,
		MetricsTextfile: ctx.String(flags.MetricsTextfile.Name),
		Log:             log,
	}, nil
}
