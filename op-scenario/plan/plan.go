// Package plan loads scenario plans: ordered tool invocations whose outputs
// are captured into the environment of the invocations that follow.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-scenario/extract"
	"github.com/ethereum-optimism/infra/op-scenario/fixture"
)

// Selection picks which match(es) of a capture pattern are kept.
type Selection string

const (
	SelectFirst Selection = "first"
	SelectLast  Selection = "last"
	SelectAll   Selection = "all"
)

// AllSeparator joins the matches of a SelectAll capture.
const AllSeparator = ","

// Plan is a list of scenarios.
type Plan struct {
	Scenarios []Scenario `yaml:"scenarios" toml:"scenarios"`
}

// Scenario is one ordered sequence of invocations against a ledger.
type Scenario struct {
	Name        string        `yaml:"name" toml:"name"`
	Description string        `yaml:"description,omitempty" toml:"description"`
	Setup       fixture.Setup `yaml:"setup" toml:"setup"`
	PackageDir  string        `yaml:"package_dir,omitempty" toml:"package_dir"`
	Steps       []Step        `yaml:"steps,omitempty" toml:"steps"`
}

// Step is one invocation. Exactly one of Manifest or Command is set:
// Manifest runs a transaction manifest, Command any other tool sub-command
// (eg. "show-ledger").
type Step struct {
	Name     string    `yaml:"name,omitempty" toml:"name"`
	Manifest string    `yaml:"manifest,omitempty" toml:"manifest"`
	Command  string    `yaml:"command,omitempty" toml:"command"`
	Captures []Capture `yaml:"captures,omitempty" toml:"captures"`
}

// Capture extracts a value from a step's output into the environment under
// Key. Pattern names a pattern known to the extract package; Regex is a
// custom single-group pattern.
type Capture struct {
	Key     string    `yaml:"key" toml:"key"`
	Pattern string    `yaml:"pattern,omitempty" toml:"pattern"`
	Regex   string    `yaml:"regex,omitempty" toml:"regex"`
	Select  Selection `yaml:"select,omitempty" toml:"select"`
}

// Load reads a plan from a .yaml, .yml or .toml file and validates it.
func Load(path string) (*Plan, error) {
	log.Debug("Reading scenario plan", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var p Plan
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing plan file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &p); err != nil {
			return nil, fmt.Errorf("parsing plan file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan file extension %q", ext)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks the plan for structural errors before anything touches
// the ledger.
func (p *Plan) Validate() error {
	if len(p.Scenarios) == 0 {
		return errors.New("plan has no scenarios")
	}
	seen := make(map[string]struct{}, len(p.Scenarios))
	var errs error
	for i := range p.Scenarios {
		s := &p.Scenarios[i]
		if s.Name == "" {
			errs = errors.Join(errs, fmt.Errorf("scenario %d has no name", i))
			continue
		}
		if _, ok := seen[s.Name]; ok {
			errs = errors.Join(errs, fmt.Errorf("duplicate scenario %s", s.Name))
		}
		seen[s.Name] = struct{}{}
		if err := s.validate(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("scenario %s: %w", s.Name, err))
		}
	}
	return errs
}

func (s *Scenario) validate() error {
	if !s.Setup.IsValid() {
		return fmt.Errorf("unknown setup %q, must be one of: %s, %s", s.Setup, fixture.SetupFresh, fixture.SetupAttach)
	}
	var errs error
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("step %d (%s): %w", i, step.DisplayName(), err))
		}
	}
	return errs
}

func (st Step) validate() error {
	if (st.Manifest == "") == (st.Command == "") {
		return errors.New("exactly one of manifest or command must be set")
	}
	keys := make(map[string]struct{}, len(st.Captures))
	var errs error
	for _, c := range st.Captures {
		if err := c.validate(); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if _, ok := keys[c.Key]; ok {
			errs = errors.Join(errs, fmt.Errorf("duplicate capture key %s", c.Key))
		}
		keys[c.Key] = struct{}{}
	}
	return errs
}

// DisplayName returns the step name, falling back to what it runs.
func (st Step) DisplayName() string {
	switch {
	case st.Name != "":
		return st.Name
	case st.Manifest != "":
		return strings.TrimSuffix(filepath.Base(st.Manifest), filepath.Ext(st.Manifest))
	default:
		return st.Command
	}
}

func (c Capture) validate() error {
	if c.Key == "" {
		return errors.New("capture has no key")
	}
	if (c.Pattern == "") == (c.Regex == "") {
		return fmt.Errorf("capture %s: exactly one of pattern or regex must be set", c.Key)
	}
	if _, err := c.resolve(); err != nil {
		return fmt.Errorf("capture %s: %w", c.Key, err)
	}
	switch c.Select {
	case "", SelectFirst, SelectLast, SelectAll:
	default:
		return fmt.Errorf("capture %s: unknown select %q", c.Key, c.Select)
	}
	return nil
}

func (c Capture) resolve() (string, error) {
	pattern := c.Regex
	if c.Pattern != "" {
		p, ok := extract.Lookup(c.Pattern)
		if !ok {
			return "", fmt.Errorf("unknown pattern %q, must be one of: %s", c.Pattern, strings.Join(extract.Names(), ", "))
		}
		pattern = p
	}
	if _, err := extract.Compile(pattern); err != nil {
		return "", err
	}
	return pattern, nil
}

// Apply extracts the capture's value from text.
func (c Capture) Apply(text string) (string, error) {
	pattern, err := c.resolve()
	if err != nil {
		return "", err
	}
	switch c.Select {
	case SelectLast:
		return extract.Last(text, pattern)
	case SelectAll:
		all, err := extract.All(text, pattern)
		if err != nil {
			return "", err
		}
		if len(all) == 0 {
			return "", extract.NewNoMatchError(pattern, text)
		}
		return strings.Join(all, AllSeparator), nil
	default:
		return extract.One(text, pattern)
	}
}

// Select returns the scenarios named in names, in plan order. An empty
// names list selects every scenario.
func (p *Plan) Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return p.Scenarios, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = false
	}
	var out []Scenario
	for _, s := range p.Scenarios {
		if _, ok := want[s.Name]; ok {
			want[s.Name] = true
			out = append(out, s)
		}
	}
	var missing []string
	for _, n := range names {
		if !want[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown scenarios: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
