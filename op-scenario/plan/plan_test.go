package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-scenario/extract"
	"github.com/ethereum-optimism/infra/op-scenario/fixture"
)

func expectedSaveWithFriends() []Scenario {
	return []Scenario{
		{
			Name:  "publish_package",
			Setup: fixture.SetupFresh,
		},
		{
			Name:  "close_early",
			Setup: fixture.SetupAttach,
			Steps: []Step{
				{
					Name:     "instantiate",
					Manifest: "manifests/amount_bound_instantiate.rtm",
					Captures: []Capture{
						{Key: "component_address", Pattern: "component"},
						{Key: "nft_address", Pattern: "resource", Select: SelectLast},
					},
				},
				{
					Name:     "close_early",
					Manifest: "manifests/amount_bound_close_early.rtm",
				},
			},
		},
	}
}

func TestLoadYAMLAndTOMLAgree(t *testing.T) {
	for _, file := range []string{"save-with-friends.yaml", "save-with-friends.toml"} {
		t.Run(file, func(t *testing.T) {
			p, err := Load(filepath.Join("..", "testdata", file))
			require.NoError(t, err)
			require.Len(t, p.Scenarios, 2)

			want := expectedSaveWithFriends()
			for i := range want {
				got := p.Scenarios[i]
				got.Description = ""
				assert.Equal(t, want[i], got)
			}
		})
	}
}

func writePlan(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		errorMsg string
	}{
		{
			name:     "unsupported extension",
			file:     "plan.json",
			content:  "{}",
			errorMsg: `unsupported plan file extension ".json"`,
		},
		{
			name:     "no scenarios",
			file:     "plan.yaml",
			content:  "scenarios: []\n",
			errorMsg: "plan has no scenarios",
		},
		{
			name:     "unknown setup",
			file:     "plan.yaml",
			content:  "scenarios:\n  - name: a\n    setup: reuse\n",
			errorMsg: `unknown setup "reuse"`,
		},
		{
			name:     "duplicate scenario",
			file:     "plan.yaml",
			content:  "scenarios:\n  - name: a\n    setup: fresh\n  - name: a\n    setup: fresh\n",
			errorMsg: "duplicate scenario a",
		},
		{
			name:     "step with manifest and command",
			file:     "plan.yaml",
			content:  "scenarios:\n  - name: a\n    setup: fresh\n    steps:\n      - manifest: m.rtm\n        command: show-ledger\n",
			errorMsg: "exactly one of manifest or command must be set",
		},
		{
			name:     "unknown pattern",
			file:     "plan.yaml",
			content:  "scenarios:\n  - name: a\n    setup: fresh\n    steps:\n      - manifest: m.rtm\n        captures:\n          - key: x\n            pattern: vault\n",
			errorMsg: `unknown pattern "vault"`,
		},
		{
			name:     "malformed regex",
			file:     "plan.yaml",
			content:  "scenarios:\n  - name: a\n    setup: fresh\n    steps:\n      - manifest: m.rtm\n        captures:\n          - key: x\n            regex: 'Vault: [a-z]+'\n",
			errorMsg: "malformed pattern",
		},
		{
			name:     "unknown select",
			file:     "plan.yaml",
			content:  "scenarios:\n  - name: a\n    setup: fresh\n    steps:\n      - manifest: m.rtm\n        captures:\n          - key: x\n            pattern: resource\n            select: middle\n",
			errorMsg: `unknown select "middle"`,
		},
		{
			name:     "duplicate capture key",
			file:     "plan.toml",
			content:  "[[scenarios]]\nname = \"a\"\nsetup = \"attach\"\n[[scenarios.steps]]\ncommand = \"show-ledger\"\n[[scenarios.steps.captures]]\nkey = \"x\"\npattern = \"ledger_package\"\n[[scenarios.steps.captures]]\nkey = \"x\"\npattern = \"ledger_account\"\n",
			errorMsg: "duplicate capture key x",
		},
		{
			name:     "bad yaml",
			file:     "plan.yaml",
			content:  "scenarios: [\n",
			errorMsg: "parsing plan file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writePlan(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCaptureApply(t *testing.T) {
	out := "Component: comp_1\nResource: res_1\nResource: res_2\n"
	tests := []struct {
		name    string
		capture Capture
		want    string
	}{
		{name: "component", capture: Capture{Key: "component_address", Pattern: "component"}, want: "comp_1"},
		{name: "first resource", capture: Capture{Key: "r", Pattern: "resource", Select: SelectFirst}, want: "res_1"},
		{name: "last resource", capture: Capture{Key: "nft_address", Pattern: "resource", Select: SelectLast}, want: "res_2"},
		{name: "all resources", capture: Capture{Key: "r", Pattern: "resource", Select: SelectAll}, want: "res_1,res_2"},
		{name: "custom regex", capture: Capture{Key: "r", Regex: `Resource: (res_\d)\n$`}, want: "res_2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.capture.Apply(out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCaptureApplyNoMatch(t *testing.T) {
	for _, sel := range []Selection{SelectFirst, SelectLast, SelectAll} {
		_, err := Capture{Key: "x", Pattern: "resource", Select: sel}.Apply("Component: c\n")
		assert.True(t, errors.Is(err, extract.ErrNoMatch), sel)
	}
}

func TestStepDisplayName(t *testing.T) {
	assert.Equal(t, "named", Step{Name: "named", Manifest: "m.rtm"}.DisplayName())
	assert.Equal(t, "amount_bound_instantiate", Step{Manifest: "manifests/amount_bound_instantiate.rtm"}.DisplayName())
	assert.Equal(t, "show-ledger", Step{Command: "show-ledger"}.DisplayName())
}

func TestSelect(t *testing.T) {
	p := &Plan{Scenarios: expectedSaveWithFriends()}

	all, err := p.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := p.Select([]string{"close_early"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "close_early", one[0].Name)

	_, err = p.Select([]string{"close_early", "withdraw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenarios: withdraw")
}
