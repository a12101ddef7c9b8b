package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	scenario "github.com/ethereum-optimism/infra/op-scenario"
	"github.com/ethereum-optimism/infra/op-scenario/exitcodes"
	"github.com/ethereum-optimism/infra/op-scenario/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-scenario"
	app.Usage = "Ledger Scenario Runner"
	app.Description = "op-scenario drives a ledger simulator through scripted scenarios"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// exitCode maps an application error to the process exit code.
func exitCode(err error) int {
	var exitErr cli.ExitCoder
	switch {
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	case scenario.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case scenario.IsScenarioFailureError(err):
		return exitcodes.ScenarioFailure
	default:
		return exitcodes.ScenarioFailure
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := scenario.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, scenario.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	svc, err := scenario.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		// An unreadable or invalid plan is a runtime error, exit code 2
		return nil, scenario.NewRuntimeError(fmt.Errorf("failed to create scenario service: %w", err))
	}

	return svc, nil
}
