package fixture

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-scenario/actor"
	"github.com/ethereum-optimism/infra/op-scenario/extract"
	"github.com/ethereum-optimism/infra/op-scenario/ledger"
	"github.com/ethereum-optimism/infra/op-scenario/runner"
	"github.com/ethereum-optimism/infra/op-scenario/runner/runnertest"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

func newAccount(n int) string {
	return fmt.Sprintf("A new account has been created!\n"+
		"Account component address: account_sim%d\n"+
		"Public key: pub%d\n"+
		"Private key: priv%d\n", n, n, n)
}

const showConfigs = `Default Account:
Account Address: account_payer
Public Key: pubpayer
Current Epoch: 0
`

func testConfig(t *testing.T, fake *runnertest.Scripted) Config {
	t.Helper()
	tool, err := ledger.New("resim", fake)
	require.NoError(t, err)
	return Config{
		Tool: tool,
		Log:  log.NewLogger(log.DiscardHandler()),
	}
}

func freshScript() *runnertest.Scripted {
	return runnertest.New().
		On("resim reset", "Data directory cleared.").
		On("resim new-account", newAccount(1)).
		On("resim new-account", newAccount(2)).
		On("resim new-account", newAccount(3)).
		On("resim publish .", "Compiling package...\nSuccess! New Package: package_xyz\n").
		On("resim show-configs", showConfigs)
}

func TestNew(t *testing.T) {
	fake := freshScript()
	f, err := New(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	assert.Equal(t, SetupFresh, f.Setup())
	assert.Equal(t, "package_xyz", f.Package())
	assert.Equal(t, []actor.Actor{
		{PublicKey: "pub1", PrivateKey: "priv1", Address: "account_sim1"},
		{PublicKey: "pub2", PrivateKey: "priv2", Address: "account_sim2"},
		{PublicKey: "pub3", PrivateKey: "priv3", Address: "account_sim3"},
	}, f.Actors())
	assert.Equal(t, []string{
		"resim reset",
		"resim new-account",
		"resim new-account",
		"resim new-account",
		"resim publish .",
	}, fake.CommandLines())
}

func TestNewResetFailureIsFatal(t *testing.T) {
	fake := runnertest.New().Fail("resim reset", 1, "cannot remove data dir")
	f, err := New(context.Background(), testConfig(t, fake))
	require.Error(t, err)
	assert.Nil(t, f)
	assert.True(t, runner.IsToolFailure(err))
	assert.Equal(t, []string{"resim reset"}, fake.CommandLines())
}

func TestNewActorFailureStopsBeforePublish(t *testing.T) {
	fake := runnertest.New().
		On("resim reset", "").
		On("resim new-account", newAccount(1)).
		Fail("resim new-account", 1, "")
	_, err := New(context.Background(), testConfig(t, fake))
	require.Error(t, err)
	assert.True(t, runner.IsToolFailure(err))
	assert.NotContains(t, fake.CommandLines(), "resim publish .")
}

func TestNewPublishWithoutPackage(t *testing.T) {
	fake := runnertest.New().
		On("resim reset", "").
		On("resim new-account", newAccount(1)).
		On("resim publish .", "error[E0425]: cannot find value `vault` in this scope\n")
	_, err := New(context.Background(), testConfig(t, fake))
	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrNoMatch))
	// the tool output is the only diagnostic, so it must reach the caller
	assert.Contains(t, err.Error(), "cannot find value `vault` in this scope")
}

func TestNewCustomPackageDir(t *testing.T) {
	fake := runnertest.New().
		On("resim reset", "").
		On("resim new-account", newAccount(1)).
		On("resim publish ./contracts/savings", "Success! New Package: package_savings\n")
	cfg := testConfig(t, fake)
	cfg.PackageDir = "./contracts/savings"
	cfg.Accounts = 1

	f, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "package_savings", f.Package())
	assert.Len(t, f.Actors(), 1)
}

const ledgerDump = `Packages: 3
├─ package_sim1zzz
├─ package_sim1aaa
└─ package_sim1mmm
Components: 2
├─ account_abc
└─ account_def
Resource Managers: 1
└─ resource_sim1xrd
`

func TestAttach(t *testing.T) {
	fake := runnertest.New().On("resim show-ledger", ledgerDump)
	f, err := Attach(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	assert.Equal(t, SetupAttach, f.Setup())
	assert.Equal(t, []actor.Actor{actor.Known("account_abc"), actor.Known("account_def")}, f.Actors())
	for _, a := range f.Actors() {
		assert.False(t, a.HasKeys())
	}
	// last in dump order, not lexicographic order
	assert.Equal(t, "package_sim1mmm", f.Package())
	assert.Equal(t, []string{"resim show-ledger"}, fake.CommandLines())
}

func TestAttachWithoutPackage(t *testing.T) {
	fake := runnertest.New().On("resim show-ledger", "Components: 1\n└─ account_abc\n")
	_, err := Attach(context.Background(), testConfig(t, fake))
	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrNoMatch))
	assert.Contains(t, err.Error(), "account_abc")
}

func TestAttachToolFailure(t *testing.T) {
	fake := runnertest.New().Fail("resim show-ledger", 2, "")
	_, err := Attach(context.Background(), testConfig(t, fake))
	assert.True(t, runner.IsToolFailure(err))
}

func TestEnv(t *testing.T) {
	fake := freshScript()
	f, err := New(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	env, err := f.Env(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Env{
		"account_1":       "account_sim1",
		"account_2":       "account_sim2",
		"account_3":       "account_sim3",
		"package_address": "package_xyz",
		"payer_account":   "account_payer",
	}, env)
}

func TestEnvIsIdempotent(t *testing.T) {
	fake := freshScript()
	f, err := New(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	first, err := f.Env(context.Background())
	require.NoError(t, err)
	second, err := f.Env(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// each call queries the configuration again
	lines := fake.CommandLines()
	assert.Equal(t, []string{"resim show-configs", "resim show-configs"}, lines[len(lines)-2:])
}

func TestEnvReflectsCurrentConfiguration(t *testing.T) {
	fake := runnertest.New().
		On("resim show-ledger", ledgerDump+"└─ account_ghi\n").
		On("resim show-configs", "Account Address: account_first\n").
		On("resim show-configs", "Account Address: account_second\n")
	f, err := Attach(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	first, err := f.Env(context.Background())
	require.NoError(t, err)
	second, err := f.Env(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "account_first", first[types.EnvPayerAccount])
	assert.Equal(t, "account_second", second[types.EnvPayerAccount])
}

func TestEnvReturnsIndependentMaps(t *testing.T) {
	fake := freshScript()
	f, err := New(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	env, err := f.Env(context.Background())
	require.NoError(t, err)
	env["package_address"] = "tampered"

	again, err := f.Env(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "package_xyz", again["package_address"])
	assert.Equal(t, "package_xyz", f.Package())
}

func TestEnvNotEnoughActors(t *testing.T) {
	fake := runnertest.New().On("resim show-ledger", ledgerDump)
	f, err := Attach(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	env, err := f.Env(context.Background())
	require.Error(t, err)
	assert.Nil(t, env)
	assert.True(t, errors.Is(err, ErrNotEnoughActors))
}

func TestEnvShowConfigsFailure(t *testing.T) {
	fake := freshScript()
	f, err := New(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	fake.Fail("resim show-configs", 1, "")
	// drain the scripted success so the failure is served next
	_, err = f.Env(context.Background())
	require.NoError(t, err)

	env, err := f.Env(context.Background())
	require.Error(t, err)
	assert.Nil(t, env)
	assert.True(t, runner.IsToolFailure(err))
}

func TestActorsReturnsCopy(t *testing.T) {
	fake := freshScript()
	f, err := New(context.Background(), testConfig(t, fake))
	require.NoError(t, err)

	actors := f.Actors()
	actors[0] = actor.Known("account_evil")
	assert.Equal(t, "account_sim1", f.Actors()[0].Address)
}

func TestSetupIsValid(t *testing.T) {
	assert.True(t, SetupFresh.IsValid())
	assert.True(t, SetupAttach.IsValid())
	assert.False(t, Setup("reuse").IsValid())
}

func TestConfigRequiresTool(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = Attach(context.Background(), Config{})
	require.Error(t, err)
}
