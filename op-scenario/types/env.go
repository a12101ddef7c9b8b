package types

import (
	"fmt"
	"sort"
)

// Well-known environment keys exposed by a scenario fixture.
const (
	EnvPackageAddress = "package_address"
	EnvPayerAccount   = "payer_account"
	EnvAccountPrefix  = "account_"
)

// Env is the named-value environment threaded between tool invocations.
// It doubles as the process environment overlay for the child and as the
// accumulated scenario state (accounts, packages, components, resources).
//
// Env values are treated as immutable per step: the extension helpers always
// return a new map and leave the receiver untouched.
type Env map[string]string

// AccountKey returns the positional key for the n-th actor (1-based).
func AccountKey(n int) string {
	return fmt.Sprintf("%s%d", EnvAccountPrefix, n)
}

// Clone returns a shallow copy of the environment. A nil Env clones to an
// empty, non-nil Env.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// With returns a copy of the environment extended with key=value.
func (e Env) With(key, value string) Env {
	out := e.Clone()
	out[key] = value
	return out
}

// Merge returns a copy of the environment extended with every entry of
// other. Entries in other win on conflict.
func (e Env) Merge(other Env) Env {
	out := e.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the sorted keys of the environment.
func (e Env) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ renders the environment as sorted KEY=VALUE pairs, the format
// expected by exec.Cmd.Env.
func (e Env) Environ() []string {
	out := make([]string, 0, len(e))
	for _, k := range e.Keys() {
		out = append(out, k+"="+e[k])
	}
	return out
}
