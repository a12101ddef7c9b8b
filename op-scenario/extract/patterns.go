package extract

import "sort"

// Token matches an identifier as printed by the tool.
const Token = `[a-zA-Z0-9_]+`

// new-account
const (
	PublicKey      = `Public key: (` + Token + `)`
	PrivateKey     = `Private key: (` + Token + `)`
	AccountAddress = `Account component address: (` + Token + `)`
)

// publish
const (
	NewPackage = `Success! New Package: (` + Token + `)`
)

// show-ledger
const (
	LedgerAccount = `(account_` + Token + `)`
	LedgerPackage = `(package_` + Token + `)`
)

// show-configs
const (
	ConfiguredAccount = `Account Address: (account_` + Token + `)`
)

// run
const (
	Component = `Component: (` + Token + `)`
	Resource  = `Resource: (` + Token + `)`
)

var named = map[string]string{
	"public_key":         PublicKey,
	"private_key":        PrivateKey,
	"account_address":    AccountAddress,
	"new_package":        NewPackage,
	"ledger_account":     LedgerAccount,
	"ledger_package":     LedgerPackage,
	"configured_account": ConfiguredAccount,
	"component":          Component,
	"resource":           Resource,
}

// Lookup resolves a pattern by the name scenario plans refer to it with.
func Lookup(name string) (string, bool) {
	p, ok := named[name]
	return p, ok
}

// Names lists the pattern names accepted by Lookup.
func Names() []string {
	out := make([]string, 0, len(named))
	for k := range named {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
