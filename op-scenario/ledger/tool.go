// Package ledger names the commands of the external ledger tool and builds
// their command lines. Output is returned verbatim; parsing belongs to the
// extract package.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum-optimism/infra/op-scenario/runner"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

const DefaultBinary = "resim"

// Tool sub-commands
const (
	ResetCommand       = "reset"
	NewAccountCommand  = "new-account"
	PublishCommand     = "publish"
	ShowLedgerCommand  = "show-ledger"
	ShowConfigsCommand = "show-configs"
	RunCommand         = "run"
)

// ErrInvalidArgument is returned for arguments the whitespace-splitting
// runner could not pass through intact.
var ErrInvalidArgument = errors.New("invalid argument")

// Tool drives the external ledger tool through an Invoker.
type Tool struct {
	Binary  string
	Invoker runner.Invoker
}

// New creates a Tool; an empty binary defaults to DefaultBinary.
func New(binary string, invoker runner.Invoker) (*Tool, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker cannot be nil")
	}
	if binary == "" {
		binary = DefaultBinary
	}
	if err := checkArg(binary); err != nil {
		return nil, err
	}
	return &Tool{Binary: binary, Invoker: invoker}, nil
}

// CommandLine renders the command line for command with args.
func (t *Tool) CommandLine(command string, args ...string) (string, error) {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, t.Binary, command)
	for _, a := range append([]string{command}, args...) {
		if err := checkArg(a); err != nil {
			return "", err
		}
	}
	parts = append(parts, args...)
	return strings.Join(parts, " "), nil
}

// Exec runs an arbitrary tool command with an optional environment overlay.
func (t *Tool) Exec(ctx context.Context, env types.Env, command string, args ...string) (string, error) {
	line, err := t.CommandLine(command, args...)
	if err != nil {
		return "", err
	}
	return t.Invoker.Run(ctx, line, env)
}

// Reset discards all ledger state.
func (t *Tool) Reset(ctx context.Context) (string, error) {
	return t.Exec(ctx, nil, ResetCommand)
}

// NewAccount creates an account and prints its key pair and address.
func (t *Tool) NewAccount(ctx context.Context) (string, error) {
	return t.Exec(ctx, nil, NewAccountCommand)
}

// Publish publishes the package found in dir.
func (t *Tool) Publish(ctx context.Context, dir string) (string, error) {
	return t.Exec(ctx, nil, PublishCommand, dir)
}

// ShowLedger dumps every entity on the ledger.
func (t *Tool) ShowLedger(ctx context.Context) (string, error) {
	return t.Exec(ctx, nil, ShowLedgerCommand)
}

// ShowConfigs prints the tool configuration, including the default account.
func (t *Tool) ShowConfigs(ctx context.Context) (string, error) {
	return t.Exec(ctx, nil, ShowConfigsCommand)
}

// Run executes a transaction manifest with env available for substitution.
func (t *Tool) Run(ctx context.Context, manifest string, env types.Env) (string, error) {
	return t.Exec(ctx, env, RunCommand, manifest)
}

func checkArg(arg string) error {
	if arg == "" {
		return fmt.Errorf("%w: empty argument", ErrInvalidArgument)
	}
	if strings.IndexFunc(arg, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidArgument, arg)
	}
	return nil
}
