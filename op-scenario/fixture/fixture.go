// Package fixture establishes the initial ledger state of a scenario and
// exposes it as the environment consumed by later tool invocations.
//
// A fixture is built by exactly one of two transitions: New resets the
// ledger and provisions fresh actors and a freshly published package;
// Attach adopts whatever an earlier run left on the ledger. Either way the
// fixture is read-only afterwards.
package fixture

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-scenario/actor"
	"github.com/ethereum-optimism/infra/op-scenario/extract"
	"github.com/ethereum-optimism/infra/op-scenario/ledger"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

const (
	// DefaultAccounts is the number of fresh actors New provisions.
	DefaultAccounts = 3
	// EnvAccounts is the number of actors exposed as account_N by Env.
	EnvAccounts = 3
	// DefaultPackageDir is published by New when no directory is set.
	DefaultPackageDir = "."
)

// Setup names the transition a fixture was built with.
type Setup string

const (
	SetupFresh  Setup = "fresh"
	SetupAttach Setup = "attach"
)

// IsValid reports whether s is a known setup mode.
func (s Setup) IsValid() bool {
	return s == SetupFresh || s == SetupAttach
}

// ErrNotEnoughActors is returned by Env when fewer than EnvAccounts actors
// are known.
var ErrNotEnoughActors = errors.New("not enough actors")

// Config holds configuration for building a fixture
type Config struct {
	Tool       *ledger.Tool
	Log        log.Logger
	PackageDir string // Directory published by New
	Accounts   int    // Fresh actors created by New
}

// Fixture is the initial state of a scenario.
type Fixture struct {
	tool           *ledger.Tool
	log            log.Logger
	setup          Setup
	actors         []actor.Actor
	packageAddress string
}

func (cfg *Config) check() error {
	if cfg.Tool == nil {
		return fmt.Errorf("tool is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.PackageDir == "" {
		cfg.PackageDir = DefaultPackageDir
	}
	if cfg.Accounts <= 0 {
		cfg.Accounts = DefaultAccounts
	}
	return nil
}

// New resets the ledger, creates cfg.Accounts fresh actors and publishes
// the package in cfg.PackageDir.
func New(ctx context.Context, cfg Config) (*Fixture, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}

	if _, err := cfg.Tool.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset ledger: %w", err)
	}

	factory, err := actor.NewFactory(cfg.Tool, cfg.Log)
	if err != nil {
		return nil, err
	}
	actors := make([]actor.Actor, 0, cfg.Accounts)
	for i := 0; i < cfg.Accounts; i++ {
		a, err := factory.NewFresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create actor %d: %w", i+1, err)
		}
		actors = append(actors, a)
	}

	out, err := cfg.Tool.Publish(ctx, cfg.PackageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to publish package: %w", err)
	}
	pkg, err := extract.One(out, extract.NewPackage)
	if err != nil {
		return nil, fmt.Errorf("failed to read published package: %w", err)
	}
	cfg.Log.Info("Published package", "package", pkg, "dir", cfg.PackageDir)

	return &Fixture{
		tool:           cfg.Tool,
		log:            cfg.Log,
		setup:          SetupFresh,
		actors:         actors,
		packageAddress: pkg,
	}, nil
}

// Attach builds a fixture from the current ledger contents. Every account
// in the dump becomes a Known actor, in dump order, and the last package in
// the dump is taken as the active one.
//
// The dump is assumed to list entities in creation order. The tool does not
// document this, so "last package wins" is a heuristic.
func Attach(ctx context.Context, cfg Config) (*Fixture, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}

	out, err := cfg.Tool.ShowLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to show ledger: %w", err)
	}

	addresses, err := extract.All(out, extract.LedgerAccount)
	if err != nil {
		return nil, err
	}
	packages, err := extract.All(out, extract.LedgerPackage)
	if err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("no package found on ledger: %w", extract.NewNoMatchError(extract.LedgerPackage, out))
	}
	pkg := packages[len(packages)-1]
	if len(packages) > 1 {
		cfg.Log.Warn("Multiple packages on ledger, using the last listed", "package", pkg, "packages", packages)
	}

	actors := make([]actor.Actor, 0, len(addresses))
	for _, addr := range addresses {
		actors = append(actors, actor.Known(addr))
	}
	cfg.Log.Info("Attached to ledger", "accounts", len(actors), "package", pkg)

	return &Fixture{
		tool:           cfg.Tool,
		log:            cfg.Log,
		setup:          SetupAttach,
		actors:         actors,
		packageAddress: pkg,
	}, nil
}

// Env returns a new environment with account_1..account_3, package_address
// and payer_account. The payer is read from the tool configuration on every
// call so it reflects the configuration at call time.
func (f *Fixture) Env(ctx context.Context) (types.Env, error) {
	if len(f.actors) < EnvAccounts {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughActors, len(f.actors), EnvAccounts)
	}

	out, err := f.tool.ShowConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to show configs: %w", err)
	}
	payer, err := extract.One(out, extract.ConfiguredAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to read payer account: %w", err)
	}

	env := make(types.Env, EnvAccounts+2)
	for i := 0; i < EnvAccounts; i++ {
		env[types.AccountKey(i+1)] = f.actors[i].Address
	}
	env[types.EnvPackageAddress] = f.packageAddress
	env[types.EnvPayerAccount] = payer
	return env, nil
}

// Actors returns a copy of the fixture's actors in creation or dump order.
func (f *Fixture) Actors() []actor.Actor {
	out := make([]actor.Actor, len(f.actors))
	copy(out, f.actors)
	return out
}

// Package returns the active package address.
func (f *Fixture) Package() string {
	return f.packageAddress
}

// Setup returns the transition the fixture was built with.
func (f *Fixture) Setup() Setup {
	return f.setup
}
