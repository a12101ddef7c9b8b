// Package exitcodes defines the standard exit codes used by op-scenario.
package exitcodes

// Exit code constants used by op-scenario
//
// * Success (0): Used when all scenarios pass
// * ScenarioFailure (1): Used when one or more scenarios fail
// * RuntimeErr (2): Used for configuration errors, unreadable plans and panics
const (
	Success         = 0 // All scenarios pass
	ScenarioFailure = 1 // Scenario failures
	RuntimeErr      = 2 // Runtime errors
)
