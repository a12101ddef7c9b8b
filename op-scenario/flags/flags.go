package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "OP_SCENARIO"

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the scenario plan (eg. 'scenarios.yaml' or 'scenarios.toml')",
	}
	ToolBinary = &cli.StringFlag{
		Name:    "tool-binary",
		Value:   "resim",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TOOL_BINARY"),
		Usage:   "Path to the ledger tool binary. Must not contain whitespace.",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Directory the ledger tool runs in. Package and manifest paths are relative to it.",
	}
	LedgerDir = &cli.StringFlag{
		Name:    "ledger-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LEDGER_DIR"),
		Usage:   "Directory of the tool's ledger state. Scenarios take an exclusive lock here. Defaults to the workdir.",
	}
	Scenarios = &cli.StringSliceFlag{
		Name:    "scenario",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCENARIO"),
		Usage:   "Scenario to run, may be repeated. Runs the whole plan when unset.",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory to store the per-invocation journal",
	}
	MetricsTextfile = &cli.StringFlag{
		Name:    "metrics.textfile",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_TEXTFILE"),
		Usage:   "Write metrics to this node-exporter textfile after the run",
	}
)

var requiredFlags = []cli.Flag{
	Plan,
}

var optionalFlags = []cli.Flag{
	ToolBinary,
	WorkDir,
	LedgerDir,
	Scenarios,
	LogDir,
	MetricsTextfile,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
