// Package actor provisions the ledger identities a scenario acts as.
package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-scenario/extract"
	"github.com/ethereum-optimism/infra/op-scenario/ledger"
)

// Unknown marks key material that could not be recovered.
const Unknown = "unknown"

// ErrKeysUnavailable is returned when asking an attached actor for keys.
var ErrKeysUnavailable = errors.New("actor key material is unavailable")

// Actor is a ledger identity. Values are immutable once created.
type Actor struct {
	PublicKey  string
	PrivateKey string
	Address    string
}

// Known wraps an address discovered on an existing ledger. Private keys
// cannot be recovered from a ledger dump, so the actor cannot sign.
func Known(address string) Actor {
	return Actor{
		PublicKey:  Unknown,
		PrivateKey: Unknown,
		Address:    address,
	}
}

// HasKeys reports whether the actor carries usable key material.
func (a Actor) HasKeys() bool {
	return a.PublicKey != Unknown && a.PrivateKey != Unknown &&
		a.PublicKey != "" && a.PrivateKey != ""
}

// Keys returns the key pair, or ErrKeysUnavailable for attached actors.
func (a Actor) Keys() (publicKey string, privateKey string, err error) {
	if !a.HasKeys() {
		return "", "", fmt.Errorf("%w: %s", ErrKeysUnavailable, a.Address)
	}
	return a.PublicKey, a.PrivateKey, nil
}

// String omits the private key so actors can be logged.
func (a Actor) String() string {
	return fmt.Sprintf("Actor{address=%s publicKey=%s}", a.Address, a.PublicKey)
}

// Factory creates fresh actors through the tool's new-account command.
type Factory struct {
	tool *ledger.Tool
	log  log.Logger
}

// NewFactory creates an actor factory
func NewFactory(tool *ledger.Tool, logger log.Logger) (*Factory, error) {
	if tool == nil {
		return nil, fmt.Errorf("tool cannot be nil")
	}
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Factory{tool: tool, log: logger}, nil
}

// NewFresh creates an account and extracts its keys and address. Nothing is
// returned unless all three fields were found.
func (f *Factory) NewFresh(ctx context.Context) (Actor, error) {
	out, err := f.tool.NewAccount(ctx)
	if err != nil {
		return Actor{}, fmt.Errorf("failed to create account: %w", err)
	}

	publicKey, err := extract.One(out, extract.PublicKey)
	if err != nil {
		return Actor{}, fmt.Errorf("failed to read public key: %w", err)
	}
	privateKey, err := extract.One(out, extract.PrivateKey)
	if err != nil {
		return Actor{}, fmt.Errorf("failed to read private key: %w", err)
	}
	address, err := extract.One(out, extract.AccountAddress)
	if err != nil {
		return Actor{}, fmt.Errorf("failed to read account address: %w", err)
	}

	a := Actor{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Address:    address,
	}
	f.log.Info("Created actor", "address", a.Address, "publicKey", a.PublicKey)
	return a, nil
}
